package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nexushub/timebank/internal/hours"
)

// PostgresLedger persists wallets and their transaction log in PostgreSQL.
// The debit side of every posting is a single conditional UPDATE, so the
// sufficiency check and the decrement are one atomic step.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureWallet guarantees a wallet row exists for the owner, starting at zero.
func (l *PostgresLedger) EnsureWallet(ctx context.Context, ref WalletRef) error {
	ownerID, err := uuid.Parse(ref.ID)
	if err != nil {
		return fmt.Errorf("owner id: %w", err)
	}
	_, err = l.db.Exec(ctx, `INSERT INTO wallets (owner_type, owner_id, balance, created_at)
        VALUES ($1, $2, 0, $3) ON CONFLICT (owner_type, owner_id) DO NOTHING`,
		string(ref.Type), ownerID, time.Now().UTC())
	return err
}

// Balance returns the authoritative stored balance for the wallet.
func (l *PostgresLedger) Balance(ctx context.Context, ref WalletRef) (decimal.Decimal, error) {
	var raw string
	err := l.db.QueryRow(ctx, `SELECT balance::text FROM wallets WHERE owner_type = $1 AND owner_id = $2`,
		string(ref.Type), ref.ID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: %s %s", ErrWalletNotFound, ref.Type, ref.ID)
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// Apply debits one wallet and credits another as a single database
// transaction, recording exactly one immutable transaction row. Concurrent
// debits of the same wallet serialize on the conditional UPDATE; a posting
// the balance cannot cover fails with ErrInsufficientBalance and leaves no
// partial state behind.
func (l *PostgresLedger) Apply(ctx context.Context, debit, credit WalletRef, amount decimal.Decimal, kind Kind, description string) (Transaction, error) {
	if !hours.IsValid(amount) {
		return Transaction{}, fmt.Errorf("%w: %s must be a positive multiple of %s", ErrInvalidAmount, amount, hours.Quantum)
	}
	if debit == credit {
		return Transaction{}, fmt.Errorf("%w: sender and receiver are the same wallet", ErrInvalidAmount)
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	cmd, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance - $1
        WHERE owner_type = $2 AND owner_id = $3 AND balance >= $1`,
		amount.String(), string(debit.Type), debit.ID)
	if err != nil {
		return Transaction{}, err
	}
	if cmd.RowsAffected() == 0 {
		var raw string
		err := tx.QueryRow(ctx, `SELECT balance::text FROM wallets WHERE owner_type = $1 AND owner_id = $2`,
			string(debit.Type), debit.ID).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, fmt.Errorf("%w: %s %s", ErrWalletNotFound, debit.Type, debit.ID)
		}
		if err != nil {
			return Transaction{}, err
		}
		return Transaction{}, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientBalance, raw, amount)
	}

	cmd, err = tx.Exec(ctx, `UPDATE wallets SET balance = balance + $1
        WHERE owner_type = $2 AND owner_id = $3`,
		amount.String(), string(credit.Type), credit.ID)
	if err != nil {
		return Transaction{}, err
	}
	if cmd.RowsAffected() == 0 {
		return Transaction{}, fmt.Errorf("%w: %s %s", ErrWalletNotFound, credit.Type, credit.ID)
	}

	posted := Transaction{
		ID:          uuid.NewString(),
		Sender:      debit,
		Receiver:    credit,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx, `INSERT INTO wallet_transactions
        (id, sender_type, sender_id, receiver_type, receiver_id, amount, kind, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		posted.ID, string(posted.Sender.Type), posted.Sender.ID,
		string(posted.Receiver.Type), posted.Receiver.ID,
		posted.Amount.String(), string(posted.Kind), posted.Description, posted.CreatedAt); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}

	return posted, nil
}

// Transactions returns a filtered, newest-first page of the wallet's history
// together with the total row count for pagination.
func (l *PostgresLedger) Transactions(ctx context.Context, ref WalletRef, filter HistoryFilter, page Page) ([]Transaction, int, error) {
	where, args := historyWhere(ref, filter)

	var total int
	if err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT id, sender_type, sender_id, receiver_type, receiver_id,
        amount::text, kind, description, created_at
        FROM wallet_transactions WHERE %s
        ORDER BY created_at DESC, id LIMIT %d OFFSET %d`, where, page.Limit(), page.Offset())

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			t                        Transaction
			senderType, receiverType string
			rawAmount                string
		)
		if err := rows.Scan(&t.ID, &senderType, &t.Sender.ID, &receiverType, &t.Receiver.ID,
			&rawAmount, &t.Kind, &t.Description, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		t.Sender.Type = OwnerType(senderType)
		t.Receiver.Type = OwnerType(receiverType)
		if t.Amount, err = decimal.NewFromString(rawAmount); err != nil {
			return nil, 0, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// Summary aggregates totals across the wallet's entire history.
func (l *PostgresLedger) Summary(ctx context.Context, ref WalletRef) (Summary, error) {
	balance, err := l.Balance(ctx, ref)
	if err != nil {
		return Summary{}, err
	}

	const query = `SELECT
        COALESCE(SUM(amount) FILTER (WHERE receiver_type = $1 AND receiver_id = $2), 0)::text,
        COALESCE(SUM(amount) FILTER (WHERE sender_type = $1 AND sender_id = $2), 0)::text,
        COUNT(*)
        FROM wallet_transactions
        WHERE (sender_type = $1 AND sender_id = $2) OR (receiver_type = $1 AND receiver_id = $2)`

	var received, paid string
	s := Summary{Balance: balance}
	if err := l.db.QueryRow(ctx, query, string(ref.Type), ref.ID).Scan(&received, &paid, &s.TransactionCount); err != nil {
		return Summary{}, err
	}
	if s.TotalReceived, err = decimal.NewFromString(received); err != nil {
		return Summary{}, err
	}
	if s.TotalPaidOut, err = decimal.NewFromString(paid); err != nil {
		return Summary{}, err
	}
	return s, nil
}

// Reconcile recomputes the balance from the transaction log and pairs it with
// the stored value so callers can detect drift.
func (l *PostgresLedger) Reconcile(ctx context.Context, ref WalletRef) (Drift, error) {
	s, err := l.Summary(ctx, ref)
	if err != nil {
		return Drift{}, err
	}
	return Drift{Stored: s.Balance, Computed: s.TotalReceived.Sub(s.TotalPaidOut)}, nil
}

func historyWhere(ref WalletRef, filter HistoryFilter) (string, []any) {
	args := []any{string(ref.Type), ref.ID}
	var clause string
	switch filter.Direction {
	case DirectionIncoming:
		clause = "(receiver_type = $1 AND receiver_id = $2)"
	case DirectionOutgoing:
		clause = "(sender_type = $1 AND sender_id = $2)"
	default:
		clause = "((sender_type = $1 AND sender_id = $2) OR (receiver_type = $1 AND receiver_id = $2))"
	}

	conds := []string{clause}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	return strings.Join(conds, " AND "), args
}
