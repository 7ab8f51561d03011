package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresThresholdStore reads threshold configuration from the per-org
// settings document.
type PostgresThresholdStore struct {
	db *pgxpool.Pool
}

// NewPostgresThresholdStore builds a Postgres-backed threshold store.
func NewPostgresThresholdStore(db *pgxpool.Pool) *PostgresThresholdStore {
	return &PostgresThresholdStore{db: db}
}

// Thresholds decodes the org's settings document. Both the current
// `thresholds` object and the legacy flat keys written by earlier releases
// are accepted.
func (s *PostgresThresholdStore) Thresholds(ctx context.Context, orgID string) (Thresholds, bool, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT settings FROM org_settings WHERE org_id = $1`, orgID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Thresholds{}, false, nil
	}
	if err != nil {
		return Thresholds{}, false, err
	}
	return decodeThresholds(raw)
}

// settingsDoc mirrors the two shapes the settings column has carried. The
// legacy flat keys predate the typed thresholds object.
type settingsDoc struct {
	Thresholds *struct {
		Low      decimal.Decimal `json:"low"`
		Critical decimal.Decimal `json:"critical"`
	} `json:"thresholds"`
	LegacyLow      *decimal.Decimal `json:"low_balance"`
	LegacyCritical *decimal.Decimal `json:"critical_balance"`
}

func decodeThresholds(raw []byte) (Thresholds, bool, error) {
	if len(raw) == 0 {
		return Thresholds{}, false, nil
	}
	var doc settingsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Thresholds{}, false, fmt.Errorf("decode org settings: %w", err)
	}
	if doc.Thresholds != nil {
		return Thresholds{Low: doc.Thresholds.Low, Critical: doc.Thresholds.Critical}, true, nil
	}
	if doc.LegacyLow != nil && doc.LegacyCritical != nil {
		return Thresholds{Low: *doc.LegacyLow, Critical: *doc.LegacyCritical}, true, nil
	}
	return Thresholds{}, false, nil
}

// MemoryThresholdStore is an in-memory ThresholdStore for tests and DB-less
// development mode.
type MemoryThresholdStore struct {
	mu      sync.RWMutex
	storage map[string]Thresholds
}

// NewMemoryThresholdStore constructs an empty in-memory store.
func NewMemoryThresholdStore() *MemoryThresholdStore {
	return &MemoryThresholdStore{storage: make(map[string]Thresholds)}
}

// Set configures thresholds for an org.
func (s *MemoryThresholdStore) Set(orgID string, t Thresholds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage[orgID] = t
}

// Thresholds implements ThresholdStore.
func (s *MemoryThresholdStore) Thresholds(_ context.Context, orgID string) (Thresholds, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.storage[orgID]
	return t, ok, nil
}
