// Package membership provides the organization-role reads the wallet core
// needs for its authorization checks. Member lifecycle management (invites,
// approvals, removals) belongs to the wider platform, not to this service.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotMember indicates the user is not an active member of the org.
	ErrNotMember = errors.New("not an organization member")

	// ErrNotAdmin indicates the user lacks the admin role in the org.
	ErrNotAdmin = errors.New("not an organization admin")
)

// Role ranks a member within an organization. Owners hold every admin
// privilege.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Status tracks the membership lifecycle.
type Status string

const (
	StatusActive  Status = "active"
	StatusPending Status = "pending"
	StatusRemoved Status = "removed"
)

// Member links a user to an organization with a role.
type Member struct {
	OrgID    string
	UserID   string
	Role     Role
	Status   Status
	JoinedAt time.Time
}

// Repository persists organization membership records.
type Repository interface {
	Add(ctx context.Context, member Member) error
	Get(ctx context.Context, orgID, userID string) (Member, error)
	List(ctx context.Context, orgID string) ([]Member, error)
}

// Service answers the role questions the wallet services ask before mutating
// state.
type Service struct {
	repo Repository
}

// NewService builds a membership service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RequireMember returns ErrNotMember unless the user is an active member.
// Storage failures are propagated, never converted into a denial.
func (s *Service) RequireMember(ctx context.Context, orgID, userID string) error {
	member, err := s.repo.Get(ctx, orgID, userID)
	if errors.Is(err, errMemberNotFound) {
		return ErrNotMember
	}
	if err != nil {
		return fmt.Errorf("membership lookup: %w", err)
	}
	if member.Status != StatusActive {
		return ErrNotMember
	}
	return nil
}

// RequireAdmin returns ErrNotAdmin unless the user is an active admin or the
// org owner. Storage failures are propagated, never converted into a denial.
func (s *Service) RequireAdmin(ctx context.Context, orgID, userID string) error {
	member, err := s.repo.Get(ctx, orgID, userID)
	if errors.Is(err, errMemberNotFound) {
		return ErrNotAdmin
	}
	if err != nil {
		return fmt.Errorf("membership lookup: %w", err)
	}
	if member.Status != StatusActive {
		return ErrNotAdmin
	}
	if member.Role != RoleAdmin && member.Role != RoleOwner {
		return ErrNotAdmin
	}
	return nil
}

// Members lists the organization's membership records.
func (s *Service) Members(ctx context.Context, orgID string) ([]Member, error) {
	return s.repo.List(ctx, orgID)
}
