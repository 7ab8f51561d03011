package membership

import (
	"context"
	"sort"
	"sync"
)

type memoryKey struct{ orgID, userID string }

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[memoryKey]Member
}

// NewMemoryRepository constructs an in-memory repository for tests and
// DB-less development mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[memoryKey]Member)}
}

func (r *memoryRepository) Add(_ context.Context, member Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[memoryKey{member.OrgID, member.UserID}] = member
	return nil
}

func (r *memoryRepository) Get(_ context.Context, orgID, userID string) (Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	member, ok := r.storage[memoryKey{orgID, userID}]
	if !ok {
		return Member{}, errMemberNotFound
	}
	return member, nil
}

func (r *memoryRepository) List(_ context.Context, orgID string) ([]Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var members []Member
	for key, member := range r.storage {
		if key.orgID == orgID {
			members = append(members, member)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}
