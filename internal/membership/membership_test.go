package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingRepository struct {
	err error
}

func (r *failingRepository) Add(context.Context, Member) error { return r.err }
func (r *failingRepository) Get(context.Context, string, string) (Member, error) {
	return Member{}, r.err
}
func (r *failingRepository) List(context.Context, string) ([]Member, error) { return nil, r.err }

func seedService(t *testing.T, members ...Member) *Service {
	t.Helper()
	repo := NewMemoryRepository()
	for _, m := range members {
		require.NoError(t, repo.Add(context.Background(), m))
	}
	return NewService(repo)
}

func TestRequireMember(t *testing.T) {
	ctx := context.Background()
	svc := seedService(t,
		Member{OrgID: "org-1", UserID: "active", Role: RoleMember, Status: StatusActive, JoinedAt: time.Now()},
		Member{OrgID: "org-1", UserID: "removed", Role: RoleMember, Status: StatusRemoved, JoinedAt: time.Now()},
	)

	require.NoError(t, svc.RequireMember(ctx, "org-1", "active"))
	require.ErrorIs(t, svc.RequireMember(ctx, "org-1", "removed"), ErrNotMember)
	require.ErrorIs(t, svc.RequireMember(ctx, "org-1", "stranger"), ErrNotMember)
}

func TestRequireAdminRoleRanking(t *testing.T) {
	ctx := context.Background()
	svc := seedService(t,
		Member{OrgID: "org-1", UserID: "owner", Role: RoleOwner, Status: StatusActive, JoinedAt: time.Now()},
		Member{OrgID: "org-1", UserID: "admin", Role: RoleAdmin, Status: StatusActive, JoinedAt: time.Now()},
		Member{OrgID: "org-1", UserID: "member", Role: RoleMember, Status: StatusActive, JoinedAt: time.Now()},
	)

	require.NoError(t, svc.RequireAdmin(ctx, "org-1", "owner"))
	require.NoError(t, svc.RequireAdmin(ctx, "org-1", "admin"))
	require.ErrorIs(t, svc.RequireAdmin(ctx, "org-1", "member"), ErrNotAdmin)
	require.ErrorIs(t, svc.RequireAdmin(ctx, "org-1", "stranger"), ErrNotAdmin)
}

// A broken membership store must surface as a failure, not as a denial:
// callers map ErrNotMember and ErrNotAdmin to 403, and an outage dressed up
// as a 403 would silently lock members out.
func TestStorageErrorsAreNotDenials(t *testing.T) {
	ctx := context.Background()
	storageErr := errors.New("connection refused")
	svc := NewService(&failingRepository{err: storageErr})

	err := svc.RequireMember(ctx, "org-1", "user-1")
	require.ErrorIs(t, err, storageErr)
	require.NotErrorIs(t, err, ErrNotMember)

	err = svc.RequireAdmin(ctx, "org-1", "user-1")
	require.ErrorIs(t, err, storageErr)
	require.NotErrorIs(t, err, ErrNotAdmin)
}
