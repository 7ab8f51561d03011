package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexushub/timebank/internal/ledger"
)

// PostgresRecorder appends audit entries to an insert-only table. Audit
// writes never touch wallet rows, so they take no ledger locks.
type PostgresRecorder struct {
	db *pgxpool.Pool
}

// NewPostgresRecorder builds a Postgres-backed audit recorder.
func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record appends one entry. The entry's ID and timestamp are assigned here
// if unset.
func (r *PostgresRecorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO audit_log
        (id, org_id, actor_id, action, target_type, target_id, details, ip_address, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.OrgID, entry.ActorID, entry.Action,
		entry.TargetType, entry.TargetID, details, entry.IPAddress, entry.CreatedAt)
	return err
}

// Query returns a filtered, newest-first page of the org's audit trail with
// the total match count.
func (r *PostgresRecorder) Query(ctx context.Context, orgID string, filter Filter, page ledger.Page) ([]Entry, int, error) {
	where, args := auditWhere(orgID, filter)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT id, org_id, actor_id, action, target_type, target_id,
        details, ip_address, created_at FROM audit_log WHERE %s
        ORDER BY created_at DESC, id LIMIT %d OFFSET %d`, where, page.Limit(), page.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.OrgID, &e.ActorID, &e.Action,
			&e.TargetType, &e.TargetID, &details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("decode audit details: %w", err)
			}
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// ActionSummary counts entries per action since the given time. The audit UI
// uses it to populate its filter dropdown.
func (r *PostgresRecorder) ActionSummary(ctx context.Context, orgID string, since time.Time) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `SELECT action, COUNT(*) FROM audit_log
        WHERE org_id = $1 AND created_at >= $2 GROUP BY action`, orgID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		summary[action] = count
	}
	return summary, rows.Err()
}

func auditWhere(orgID string, filter Filter) (string, []any) {
	args := []any{orgID}
	conds := []string{"org_id = $1"}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.TargetType != "" {
		args = append(args, filter.TargetType)
		conds = append(conds, fmt.Sprintf("target_type = $%d", len(args)))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		conds = append(conds, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	return strings.Join(conds, " AND "), args
}
