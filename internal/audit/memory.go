package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexushub/timebank/internal/ledger"
)

type memoryRecorder struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryRecorder constructs an in-memory recorder for tests and DB-less
// development mode.
func NewMemoryRecorder() Recorder {
	return &memoryRecorder{}
}

func (r *memoryRecorder) Record(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryRecorder) Query(_ context.Context, orgID string, filter Filter, page ledger.Page) ([]Entry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Entry
	for _, e := range r.entries {
		if matches(e, orgID, filter) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit()
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *memoryRecorder) ActionSummary(_ context.Context, orgID string, since time.Time) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := make(map[string]int)
	for _, e := range r.entries {
		if e.OrgID == orgID && !e.CreatedAt.Before(since) {
			summary[e.Action]++
		}
	}
	return summary, nil
}
