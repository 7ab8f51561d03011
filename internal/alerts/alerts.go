// Package alerts computes wallet health from the current balance and the
// organization's configured thresholds. Evaluation is read-only, so it is
// safe to run on every dashboard render.
package alerts

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nexushub/timebank/internal/hours"
	"github.com/nexushub/timebank/internal/ledger"
)

// Status grades a wallet balance against its thresholds.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusLow      Status = "low"
	StatusCritical Status = "critical"
)

// Thresholds configure alerting for one organization. Critical must sit
// strictly below Low.
type Thresholds struct {
	Low      decimal.Decimal
	Critical decimal.Decimal
}

// Validate enforces the threshold ordering invariant.
func (t Thresholds) Validate() error {
	if !t.Critical.LessThan(t.Low) {
		return fmt.Errorf("critical threshold %s must be below low threshold %s", t.Critical, t.Low)
	}
	return nil
}

// BalanceStatus is the display-ready evaluation result.
type BalanceStatus struct {
	Status  Status
	Label   string
	Message string
	Balance decimal.Decimal
}

// ThresholdStore reads per-org threshold configuration. A store returning
// found=false leaves the caller on defaults.
type ThresholdStore interface {
	Thresholds(ctx context.Context, orgID string) (Thresholds, bool, error)
}

// Evaluator grades org wallet balances.
type Evaluator struct {
	store    ThresholdStore
	ledger   ledger.Ledger
	defaults Thresholds
}

// NewEvaluator builds an evaluator with the given fallback thresholds.
func NewEvaluator(store ThresholdStore, l ledger.Ledger, defaults Thresholds) (*Evaluator, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default thresholds: %w", err)
	}
	return &Evaluator{store: store, ledger: l, defaults: defaults}, nil
}

// Thresholds returns the org's configured thresholds, or the defaults when
// unconfigured or misconfigured.
func (e *Evaluator) Thresholds(ctx context.Context, orgID string) (Thresholds, error) {
	configured, found, err := e.store.Thresholds(ctx, orgID)
	if err != nil {
		return Thresholds{}, err
	}
	if !found || configured.Validate() != nil {
		return e.defaults, nil
	}
	return configured, nil
}

// BalanceStatus evaluates the org wallet's current balance.
func (e *Evaluator) BalanceStatus(ctx context.Context, orgID string) (BalanceStatus, error) {
	thresholds, err := e.Thresholds(ctx, orgID)
	if err != nil {
		return BalanceStatus{}, err
	}
	balance, err := e.ledger.Balance(ctx, ledger.OrgWallet(orgID))
	if err != nil {
		return BalanceStatus{}, err
	}
	return evaluate(balance, thresholds), nil
}

func evaluate(balance decimal.Decimal, t Thresholds) BalanceStatus {
	switch {
	case balance.LessThan(t.Critical):
		return BalanceStatus{
			Status:  StatusCritical,
			Label:   "Critical Balance",
			Message: fmt.Sprintf("Balance %s is below the critical threshold of %s.", hours.Format(balance), hours.Format(t.Critical)),
			Balance: balance,
		}
	case balance.LessThan(t.Low):
		return BalanceStatus{
			Status:  StatusLow,
			Label:   "Low Balance",
			Message: fmt.Sprintf("Balance %s is below the low threshold of %s.", hours.Format(balance), hours.Format(t.Low)),
			Balance: balance,
		}
	default:
		return BalanceStatus{Status: StatusHealthy, Label: "Healthy", Balance: balance}
	}
}
