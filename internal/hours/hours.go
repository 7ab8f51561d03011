// Package hours holds the arithmetic rules for HRS, the platform's
// time-credit unit. Amounts are quantized to quarter-hour increments.
package hours

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Quantum is the minimum HRS increment. Every amount moving through the
// ledger must be a positive multiple of it.
var Quantum = decimal.RequireFromString("0.25")

// IsValid reports whether the amount is positive and quantized.
func IsValid(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Mod(Quantum).IsZero()
}

// Parse converts user-provided text into a validated HRS amount.
func Parse(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !IsValid(amount) {
		return decimal.Zero, fmt.Errorf("amount %s is not a positive multiple of %s", amount, Quantum)
	}
	return amount, nil
}

// Format renders an amount the way the platform displays HRS values.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(2) + " HRS"
}
