package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount occurs when an amount is not a positive multiple of
	// the HRS quantum.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance occurs when the debit wallet lacks funds to
	// cover a posting at the instant it is applied.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrWalletNotFound indicates the referenced wallet does not exist.
	ErrWalletNotFound = errors.New("wallet not found")
)

// OwnerType distinguishes personal wallets from shared organization wallets.
type OwnerType string

const (
	OwnerUser         OwnerType = "user"
	OwnerOrganization OwnerType = "organization"
)

// Kind classifies how a transaction entered the ledger.
type Kind string

const (
	// KindDeposit is a member moving personal credits into an org wallet.
	KindDeposit Kind = "deposit"
	// KindRequestedTransfer is an approval-gated payout from an org wallet.
	KindRequestedTransfer Kind = "requested_transfer"
	// KindDirectTransfer is an admin-issued payout bypassing the request flow.
	KindDirectTransfer Kind = "direct_transfer"
)

// WalletRef identifies a wallet by its owner. Exactly one wallet exists per
// owner.
type WalletRef struct {
	Type OwnerType
	ID   string
}

// OrgWallet builds the reference for an organization's shared wallet.
func OrgWallet(orgID string) WalletRef {
	return WalletRef{Type: OwnerOrganization, ID: orgID}
}

// UserWallet builds the reference for a member's personal wallet.
func UserWallet(userID string) WalletRef {
	return WalletRef{Type: OwnerUser, ID: userID}
}

// Transaction is one committed, immutable ledger posting. The debit and
// credit sides are recorded together.
type Transaction struct {
	ID          string
	Sender      WalletRef
	Receiver    WalletRef
	Amount      decimal.Decimal
	Kind        Kind
	Description string
	CreatedAt   time.Time
}

// Summary aggregates a wallet's headline numbers for the dashboard.
type Summary struct {
	Balance          decimal.Decimal
	TotalReceived    decimal.Decimal
	TotalPaidOut     decimal.Decimal
	TransactionCount int
}

// Direction filters history reads relative to the queried wallet.
type Direction string

const (
	DirectionAny      Direction = ""
	DirectionIncoming Direction = "in"
	DirectionOutgoing Direction = "out"
)

// HistoryFilter narrows a transaction history read. Zero values mean no
// constraint.
type HistoryFilter struct {
	Kind      Kind
	Direction Direction
	From      time.Time
	To        time.Time
}

// Page describes pagination for history and audit reads.
type Page struct {
	Number  int
	PerPage int
}

// Limit returns the page size, defaulting to 25.
func (p Page) Limit() int {
	if p.PerPage < 1 {
		return 25
	}
	return p.PerPage
}

// Offset converts the page to a row offset, treating page numbers below one
// as the first page.
func (p Page) Offset() int {
	n := p.Number
	if n < 1 {
		n = 1
	}
	return (n - 1) * p.Limit()
}

// Drift reports the difference between a wallet's stored balance and the
// signed sum of its committed transactions. A healthy wallet has zero drift.
type Drift struct {
	Stored   decimal.Decimal
	Computed decimal.Decimal
}

// Balanced reports whether the stored balance matches the transaction log.
func (d Drift) Balanced() bool {
	return d.Stored.Equal(d.Computed)
}

// Ledger is the only component permitted to mutate wallet balances. Apply is
// atomic: the balance-sufficiency check, debit, credit and transaction insert
// commit as one unit or not at all.
type Ledger interface {
	EnsureWallet(ctx context.Context, ref WalletRef) error
	Balance(ctx context.Context, ref WalletRef) (decimal.Decimal, error)
	Apply(ctx context.Context, debit, credit WalletRef, amount decimal.Decimal, kind Kind, description string) (Transaction, error)
	Transactions(ctx context.Context, ref WalletRef, filter HistoryFilter, page Page) ([]Transaction, int, error)
	Summary(ctx context.Context, ref WalletRef) (Summary, error)
	Reconcile(ctx context.Context, ref WalletRef) (Drift, error)
}
