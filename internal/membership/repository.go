package membership

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var errMemberNotFound = errors.New("membership record not found")

// PostgresRepository stores membership records in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Add inserts a membership record.
func (r *PostgresRepository) Add(ctx context.Context, member Member) error {
	orgID, err := uuid.Parse(member.OrgID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(member.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO org_members (org_id, user_id, role, status, joined_at)
        VALUES ($1, $2, $3, $4, $5)`,
		orgID, userID, string(member.Role), string(member.Status), member.JoinedAt.UTC())
	return err
}

// Get fetches the membership record for a user within an org.
func (r *PostgresRepository) Get(ctx context.Context, orgID, userID string) (Member, error) {
	row := r.db.QueryRow(ctx, `SELECT org_id, user_id, role, status, joined_at
        FROM org_members WHERE org_id = $1 AND user_id = $2`, orgID, userID)
	member, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Member{}, errMemberNotFound
	}
	return member, err
}

// List returns all membership records for an org, active first.
func (r *PostgresRepository) List(ctx context.Context, orgID string) ([]Member, error) {
	rows, err := r.db.Query(ctx, `SELECT org_id, user_id, role, status, joined_at
        FROM org_members WHERE org_id = $1 ORDER BY status, joined_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func scanMember(row pgx.Row) (Member, error) {
	var (
		m            Member
		orgID, uID   uuid.UUID
		role, status string
		joinedAt     time.Time
	)
	if err := row.Scan(&orgID, &uID, &role, &status, &joinedAt); err != nil {
		return Member{}, err
	}
	m.OrgID = orgID.String()
	m.UserID = uID.String()
	m.Role = Role(role)
	m.Status = Status(status)
	m.JoinedAt = joinedAt.UTC()
	return m, nil
}
