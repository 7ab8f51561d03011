// Package audit is the append-only compliance trail. Every successful
// state-changing wallet operation records exactly one entry; entries are
// never updated or deleted by the application.
package audit

import (
	"context"
	"time"

	"github.com/nexushub/timebank/internal/ledger"
)

// Actions recorded by the wallet core. Direct transfers carry their own
// action so admin-issued payouts stay distinguishable from approved requests.
const (
	ActionDeposit           = "deposit"
	ActionTransferRequested = "transfer_requested"
	ActionTransferApproved  = "transfer_approved"
	ActionTransferRejected  = "transfer_rejected"
	ActionTransferCancelled = "transfer_cancelled"
	ActionDirectTransfer    = "direct_transfer"
)

// Entry is one immutable audit record.
type Entry struct {
	ID         string
	OrgID      string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Details    map[string]any
	IPAddress  string
	CreatedAt  time.Time
}

// Filter narrows an audit-log read. Zero values mean no constraint.
type Filter struct {
	Action     string
	TargetType string
	ActorID    string
	From       time.Time
	To         time.Time
}

// Recorder appends and reads audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	Query(ctx context.Context, orgID string, filter Filter, page ledger.Page) ([]Entry, int, error)
	ActionSummary(ctx context.Context, orgID string, since time.Time) (map[string]int, error)
}

func matches(e Entry, orgID string, filter Filter) bool {
	if e.OrgID != orgID {
		return false
	}
	if filter.Action != "" && e.Action != filter.Action {
		return false
	}
	if filter.TargetType != "" && e.TargetType != filter.TargetType {
		return false
	}
	if filter.ActorID != "" && e.ActorID != filter.ActorID {
		return false
	}
	if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && e.CreatedAt.After(filter.To) {
		return false
	}
	return true
}
