package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that sets a wallet's balance directly when
// using the in-memory ledger. The seeded amount is not reflected in the
// transaction log, so reconciliation-oriented tests should fund wallets
// through Apply instead.
func SeedBalance(l Ledger, ref WalletRef, amount decimal.Decimal) {
	if mem, ok := l.(*memoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[ref] = amount
	}
}
