package requests

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nexushub/timebank/internal/ledger"
)

type memoryRepository struct {
	mu      sync.Mutex
	storage map[string]TransferRequest
}

// NewMemoryRepository constructs an in-memory repository for tests and
// DB-less development mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]TransferRequest)}
}

func (r *memoryRepository) Create(_ context.Context, request TransferRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[request.ID] = request
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (TransferRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.storage[id]
	if !ok {
		return TransferRequest{}, ErrRequestNotFound
	}
	return request, nil
}

func (r *memoryRepository) Resolve(_ context.Context, id string, to Status, resolvedBy, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.storage[id]
	if !ok || request.Status != StatusPending {
		return false, nil
	}
	at = at.UTC()
	request.Status = to
	request.ResolvedAt = &at
	request.ResolvedBy = resolvedBy
	request.RejectionReason = reason
	r.storage[id] = request
	return true, nil
}

func (r *memoryRepository) Reopen(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.storage[id]
	if !ok || request.Status != StatusApproved {
		return nil
	}
	request.Status = StatusPending
	request.ResolvedAt = nil
	request.ResolvedBy = ""
	r.storage[id] = request
	return nil
}

func (r *memoryRepository) ListByOrg(_ context.Context, orgID string, status Status, page ledger.Page) ([]TransferRequest, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []TransferRequest
	for _, request := range r.storage {
		if request.OrgID != orgID {
			continue
		}
		if status != "" && request.Status != status {
			continue
		}
		matched = append(matched, request)
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

func (r *memoryRepository) CountPending(_ context.Context, orgID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, request := range r.storage {
		if request.OrgID == orgID && request.Status == StatusPending {
			count++
		}
	}
	return count, nil
}
