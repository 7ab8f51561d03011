package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexushub/timebank/internal/hours"
)

type memoryLedger struct {
	mu       sync.RWMutex
	balances map[WalletRef]decimal.Decimal
	log      []Transaction
}

// NewInMemory creates a concurrency-safe in-memory ledger with the same
// atomicity semantics as the Postgres implementation. Useful for unit tests
// and DB-less development mode.
func NewInMemory() Ledger {
	return &memoryLedger{balances: make(map[WalletRef]decimal.Decimal)}
}

func (l *memoryLedger) EnsureWallet(_ context.Context, ref WalletRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[ref]; !exists {
		l.balances[ref] = decimal.Zero
	}
	return nil
}

func (l *memoryLedger) Balance(_ context.Context, ref WalletRef) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[ref]
	if !exists {
		return decimal.Zero, fmt.Errorf("%w: %s %s", ErrWalletNotFound, ref.Type, ref.ID)
	}
	return balance, nil
}

func (l *memoryLedger) Apply(_ context.Context, debit, credit WalletRef, amount decimal.Decimal, kind Kind, description string) (Transaction, error) {
	if !hours.IsValid(amount) {
		return Transaction{}, fmt.Errorf("%w: %s must be a positive multiple of %s", ErrInvalidAmount, amount, hours.Quantum)
	}
	if debit == credit {
		return Transaction{}, fmt.Errorf("%w: sender and receiver are the same wallet", ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	debitBalance, ok := l.balances[debit]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s %s", ErrWalletNotFound, debit.Type, debit.ID)
	}
	creditBalance, ok := l.balances[credit]
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s %s", ErrWalletNotFound, credit.Type, credit.ID)
	}
	if debitBalance.LessThan(amount) {
		return Transaction{}, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientBalance, debitBalance, amount)
	}

	l.balances[debit] = debitBalance.Sub(amount)
	l.balances[credit] = creditBalance.Add(amount)

	posted := Transaction{
		ID:          uuid.NewString(),
		Sender:      debit,
		Receiver:    credit,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	l.log = append(l.log, posted)
	return posted, nil
}

func (l *memoryLedger) Transactions(_ context.Context, ref WalletRef, filter HistoryFilter, page Page) ([]Transaction, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var matched []Transaction
	for _, t := range l.log {
		if !matchesHistory(t, ref, filter) {
			continue
		}
		matched = append(matched, t)
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

func (l *memoryLedger) Summary(_ context.Context, ref WalletRef) (Summary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	balance, exists := l.balances[ref]
	if !exists {
		return Summary{}, fmt.Errorf("%w: %s %s", ErrWalletNotFound, ref.Type, ref.ID)
	}

	s := Summary{Balance: balance, TotalReceived: decimal.Zero, TotalPaidOut: decimal.Zero}
	for _, t := range l.log {
		switch {
		case t.Receiver == ref:
			s.TotalReceived = s.TotalReceived.Add(t.Amount)
			s.TransactionCount++
		case t.Sender == ref:
			s.TotalPaidOut = s.TotalPaidOut.Add(t.Amount)
			s.TransactionCount++
		}
	}
	return s, nil
}

func (l *memoryLedger) Reconcile(ctx context.Context, ref WalletRef) (Drift, error) {
	s, err := l.Summary(ctx, ref)
	if err != nil {
		return Drift{}, err
	}
	return Drift{Stored: s.Balance, Computed: s.TotalReceived.Sub(s.TotalPaidOut)}, nil
}

func matchesHistory(t Transaction, ref WalletRef, filter HistoryFilter) bool {
	switch filter.Direction {
	case DirectionIncoming:
		if t.Receiver != ref {
			return false
		}
	case DirectionOutgoing:
		if t.Sender != ref {
			return false
		}
	default:
		if t.Sender != ref && t.Receiver != ref {
			return false
		}
	}
	if filter.Kind != "" && t.Kind != filter.Kind {
		return false
	}
	if !filter.From.IsZero() && t.CreatedAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && t.CreatedAt.After(filter.To) {
		return false
	}
	return true
}
