package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"spothot/internal/identity/models"
	"spothot/pkg/platform/sentinel"
	txcontext "spothot/pkg/platform/tx"
)

// PostgresStore persists identities in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed identity store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, identity *models.Identity) error {
	if identity == nil {
		return fmt.Errorf("identity is required")
	}
	query := `
		INSERT INTO identities (id, name, email, referral_code, referral_count, is_verified, is_deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		identity.ID,
		identity.Name,
		identity.Email,
		identity.ReferralCode,
		identity.ReferralCount,
		identity.Verified,
		identity.Deleted,
		identity.CreatedAt,
	)
	if err != nil {
		switch violatedConstraint(err) {
		case "identities_email_key":
			return fmt.Errorf("email %q taken: %w", identity.Email, sentinel.ErrAlreadyUsed)
		case "identities_referral_code_key":
			return fmt.Errorf("referral code collision: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	query := selectIdentity + ` WHERE id = $1 AND NOT is_deleted`
	return scanIdentity(s.execer(ctx).QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := selectIdentity + ` WHERE email = $1 AND NOT is_deleted`
	return scanIdentity(s.execer(ctx).QueryRowContext(ctx, query, email))
}

func (s *PostgresStore) FindByReferralCode(ctx context.Context, code string) (*models.Identity, error) {
	query := selectIdentity + ` WHERE referral_code = $1 AND NOT is_deleted`
	return scanIdentity(s.execer(ctx).QueryRowContext(ctx, query, code))
}

// MarkVerified flips the verified flag; already verified rows are left as-is,
// which keeps the operation idempotent.
func (s *PostgresStore) MarkVerified(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE identities SET is_verified = TRUE WHERE id = $1 AND NOT is_deleted`
	return s.execExpectingRow(ctx, query, id)
}

// IncrementReferralCount bumps the referral count by exactly one. The single
// UPDATE keeps the increment atomic without row locking at the caller.
func (s *PostgresStore) IncrementReferralCount(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE identities SET referral_count = referral_count + 1 WHERE id = $1 AND NOT is_deleted`
	return s.execExpectingRow(ctx, query, id)
}

// Delete removes the row entirely (registration rollback only).
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM identities WHERE id = $1`
	return s.execExpectingRow(ctx, query, id)
}

// SoftDelete flags the row as deleted.
func (s *PostgresStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE identities SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted`
	return s.execExpectingRow(ctx, query, id)
}

func (s *PostgresStore) execExpectingRow(ctx context.Context, query string, args ...any) error {
	res, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

const selectIdentity = `
	SELECT id, name, email, referral_code, referral_count, is_verified, is_deleted, created_at
	FROM identities
`

func scanIdentity(row *sql.Row) (*models.Identity, error) {
	var identity models.Identity
	err := row.Scan(
		&identity.ID,
		&identity.Name,
		&identity.Email,
		&identity.ReferralCode,
		&identity.ReferralCount,
		&identity.Verified,
		&identity.Deleted,
		&identity.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	return &identity, nil
}

// violatedConstraint returns the constraint name of a postgres unique
// violation, or empty string for other errors.
func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}
