package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"spothot/internal/verification/models"
	"spothot/pkg/platform/sentinel"
)

// PostgresStore persists challenges in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed challenge store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, challenge *models.Challenge) error {
	if challenge == nil {
		return fmt.Errorf("challenge is required")
	}
	query := `
		INSERT INTO verifications (unique_code, identity_id, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := s.db.ExecContext(ctx, query,
		challenge.Code,
		challenge.IdentityID,
		challenge.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("challenge code collision: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Challenge, error) {
	query := `
		SELECT unique_code, identity_id, created_at
		FROM verifications
		WHERE unique_code = $1
	`
	var challenge models.Challenge
	err := s.db.QueryRowContext(ctx, query, code).Scan(
		&challenge.Code,
		&challenge.IdentityID,
		&challenge.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("challenge not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan challenge: %w", err)
	}
	return &challenge, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
