package requests

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nexushub/timebank/internal/ledger"
)

// Repository persists transfer requests. Resolve and Reopen are conditional
// writes; the status column is the serialization point that makes
// double-resolution impossible.
type Repository interface {
	Create(ctx context.Context, request TransferRequest) error
	Get(ctx context.Context, id string) (TransferRequest, error)
	Resolve(ctx context.Context, id string, to Status, resolvedBy, reason string, at time.Time) (bool, error)
	Reopen(ctx context.Context, id string) error
	ListByOrg(ctx context.Context, orgID string, status Status, page ledger.Page) ([]TransferRequest, int, error)
	CountPending(ctx context.Context, orgID string) (int, error)
}

// PostgresRepository stores transfer requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a pending request.
func (r *PostgresRepository) Create(ctx context.Context, request TransferRequest) error {
	id, err := uuid.Parse(request.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO transfer_requests
        (id, org_id, requester_id, recipient_id, amount, description, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, request.OrgID, request.RequesterID, request.RecipientID,
		request.Amount.String(), request.Description, string(request.Status), request.CreatedAt.UTC())
	return err
}

// Get fetches a request by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (TransferRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT id, org_id, requester_id, recipient_id, amount::text,
        description, status, created_at, resolved_at, resolved_by, rejection_reason
        FROM transfer_requests WHERE id = $1`, id)
	request, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TransferRequest{}, ErrRequestNotFound
	}
	return request, err
}

// Resolve transitions a pending request to a terminal state. It reports
// false when the request has already left pending, which callers surface as
// ErrAlreadyResolved.
func (r *PostgresRepository) Resolve(ctx context.Context, id string, to Status, resolvedBy, reason string, at time.Time) (bool, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE transfer_requests
        SET status = $1, resolved_at = $2, resolved_by = $3, rejection_reason = $4
        WHERE id = $5 AND status = $6`,
		string(to), at.UTC(), resolvedBy, nullable(reason), id, string(StatusPending))
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// Reopen returns an approved request to pending. Used only to back out a
// claim whose ledger posting could not proceed.
func (r *PostgresRepository) Reopen(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE transfer_requests
        SET status = $1, resolved_at = NULL, resolved_by = NULL
        WHERE id = $2 AND status = $3`,
		string(StatusPending), id, string(StatusApproved))
	return err
}

// ListByOrg returns a filtered, newest-first page of the org's requests with
// the total match count. An empty status matches every state.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string, status Status, page ledger.Page) ([]TransferRequest, int, error) {
	where := `org_id = $1`
	args := []any{orgID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, string(status))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transfer_requests WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT id, org_id, requester_id, recipient_id, amount::text,
        description, status, created_at, resolved_at, resolved_by, rejection_reason
        FROM transfer_requests WHERE `+where+`
        ORDER BY created_at DESC, id LIMIT `+strconv.Itoa(page.Limit())+` OFFSET `+strconv.Itoa(page.Offset()), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var requests []TransferRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, request)
	}
	return requests, total, rows.Err()
}

// CountPending counts the org's unresolved requests.
func (r *PostgresRepository) CountPending(ctx context.Context, orgID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transfer_requests
        WHERE org_id = $1 AND status = $2`, orgID, string(StatusPending)).Scan(&count)
	return count, err
}

func scanRequest(row pgx.Row) (TransferRequest, error) {
	var (
		req                 TransferRequest
		id, orgID           uuid.UUID
		requester, recip    uuid.UUID
		rawAmount, status   string
		createdAt           time.Time
		resolvedAt          *time.Time
		resolvedBy, rReason *string
	)
	if err := row.Scan(&id, &orgID, &requester, &recip, &rawAmount,
		&req.Description, &status, &createdAt, &resolvedAt, &resolvedBy, &rReason); err != nil {
		return TransferRequest{}, err
	}
	req.ID = id.String()
	req.OrgID = orgID.String()
	req.RequesterID = requester.String()
	req.RecipientID = recip.String()
	req.Status = Status(status)
	req.CreatedAt = createdAt.UTC()
	if resolvedAt != nil {
		at := resolvedAt.UTC()
		req.ResolvedAt = &at
	}
	if resolvedBy != nil {
		req.ResolvedBy = *resolvedBy
	}
	if rReason != nil {
		req.RejectionReason = *rReason
	}
	var err error
	req.Amount, err = decimal.NewFromString(rawAmount)
	return req, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
