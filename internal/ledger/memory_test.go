package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newWallets(t *testing.T, l Ledger) (org, member WalletRef) {
	t.Helper()
	ctx := context.Background()
	org = OrgWallet(uuid.NewString())
	member = UserWallet(uuid.NewString())
	if err := l.EnsureWallet(ctx, org); err != nil {
		t.Fatalf("ensure org wallet: %v", err)
	}
	if err := l.EnsureWallet(ctx, member); err != nil {
		t.Fatalf("ensure member wallet: %v", err)
	}
	return org, member
}

func TestApplyMovesFundsAndRecordsTransaction(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	org, member := newWallets(t, l)

	// Deposit 5.25 from a personal balance of 10.0 into an empty org wallet.
	SeedBalance(l, member, dec("10.0"))

	posted, err := l.Apply(ctx, member, org, dec("5.25"), KindDeposit, "weekly contribution")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if posted.Kind != KindDeposit {
		t.Fatalf("unexpected kind %s", posted.Kind)
	}

	memberBalance, _ := l.Balance(ctx, member)
	orgBalance, _ := l.Balance(ctx, org)
	if !memberBalance.Equal(dec("4.75")) {
		t.Fatalf("expected member balance 4.75, got %s", memberBalance)
	}
	if !orgBalance.Equal(dec("5.25")) {
		t.Fatalf("expected org balance 5.25, got %s", orgBalance)
	}

	history, total, err := l.Transactions(ctx, org, HistoryFilter{}, Page{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if total != 1 || len(history) != 1 {
		t.Fatalf("expected exactly one transaction, got total=%d len=%d", total, len(history))
	}
}

func TestApplyRejectsUnquantizedAmounts(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	org, member := newWallets(t, l)
	SeedBalance(l, org, dec("100"))

	for _, raw := range []string{"0", "-1", "0.1", "3.33"} {
		if _, err := l.Apply(ctx, org, member, dec(raw), KindDirectTransfer, "bad amount"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", raw, err)
		}
	}

	balance, _ := l.Balance(ctx, org)
	if !balance.Equal(dec("100")) {
		t.Fatalf("rejected postings must not move funds, balance=%s", balance)
	}
}

func TestApplyInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	org, member := newWallets(t, l)
	SeedBalance(l, org, dec("10.0"))

	_, err := l.Apply(ctx, org, member, dec("15.0"), KindRequestedTransfer, "over budget")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	balance, _ := l.Balance(ctx, org)
	if !balance.Equal(dec("10.0")) {
		t.Fatalf("balance changed on failed apply: %s", balance)
	}
	if _, total, _ := l.Transactions(ctx, org, HistoryFilter{}, Page{}); total != 0 {
		t.Fatalf("failed apply must not record a transaction, total=%d", total)
	}
}

func TestApplyRejectsSelfTransfer(t *testing.T) {
	l := NewInMemory()
	org, _ := newWallets(t, l)
	SeedBalance(l, org, dec("10"))

	if _, err := l.Apply(context.Background(), org, org, dec("1"), KindDirectTransfer, "loop"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestConcurrentDebitsNeverOverdraft(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	org, member := newWallets(t, l)
	SeedBalance(l, org, dec("30"))

	// Two concurrent approvals for 20 each against a balance of 30:
	// exactly one must succeed.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Apply(ctx, org, member, dec("20"), KindRequestedTransfer, "volunteer payout")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("expected one success and one insufficiency, got %d/%d", succeeded, insufficient)
	}

	balance, _ := l.Balance(ctx, org)
	if !balance.Equal(dec("10")) {
		t.Fatalf("expected final balance 10, got %s", balance)
	}
	if balance.IsNegative() {
		t.Fatalf("balance went negative: %s", balance)
	}
}

func TestReconcileMatchesTransactionLog(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	org, member := newWallets(t, l)
	SeedBalance(l, member, dec("50"))

	if _, err := l.Apply(ctx, member, org, dec("20.5"), KindDeposit, "seed funds"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := l.Apply(ctx, org, member, dec("4.25"), KindDirectTransfer, "session payout"); err != nil {
		t.Fatalf("payout: %v", err)
	}

	drift, err := l.Reconcile(ctx, org)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !drift.Balanced() {
		t.Fatalf("org wallet drifted: stored=%s computed=%s", drift.Stored, drift.Computed)
	}
	if !drift.Stored.Equal(dec("16.25")) {
		t.Fatalf("expected balance 16.25, got %s", drift.Stored)
	}
}

func TestSummaryAggregatesBothDirections(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	org, member := newWallets(t, l)
	SeedBalance(l, member, dec("100"))

	l.Apply(ctx, member, org, dec("30"), KindDeposit, "deposit one")
	l.Apply(ctx, member, org, dec("10"), KindDeposit, "deposit two")
	l.Apply(ctx, org, member, dec("15.75"), KindRequestedTransfer, "approved request")

	s, err := l.Summary(ctx, org)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !s.TotalReceived.Equal(dec("40")) {
		t.Fatalf("expected total received 40, got %s", s.TotalReceived)
	}
	if !s.TotalPaidOut.Equal(dec("15.75")) {
		t.Fatalf("expected total paid out 15.75, got %s", s.TotalPaidOut)
	}
	if s.TransactionCount != 3 {
		t.Fatalf("expected 3 transactions, got %d", s.TransactionCount)
	}
	if !s.Balance.Equal(dec("24.25")) {
		t.Fatalf("expected balance 24.25, got %s", s.Balance)
	}
}

func TestHistoryFilters(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	org, member := newWallets(t, l)
	SeedBalance(l, member, dec("100"))

	l.Apply(ctx, member, org, dec("30"), KindDeposit, "deposit")
	l.Apply(ctx, org, member, dec("5"), KindDirectTransfer, "payout")

	outgoing, total, err := l.Transactions(ctx, org, HistoryFilter{Direction: DirectionOutgoing}, Page{})
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if total != 1 || outgoing[0].Kind != KindDirectTransfer {
		t.Fatalf("direction filter failed: total=%d", total)
	}

	deposits, total, err := l.Transactions(ctx, org, HistoryFilter{Kind: KindDeposit}, Page{})
	if err != nil {
		t.Fatalf("kind filter: %v", err)
	}
	if total != 1 || deposits[0].Kind != KindDeposit {
		t.Fatalf("kind filter failed: total=%d", total)
	}

	if _, total, _ = l.Transactions(ctx, org, HistoryFilter{}, Page{Number: 2, PerPage: 1}); total != 2 {
		t.Fatalf("expected total 2 with pagination, got %d", total)
	}
}
