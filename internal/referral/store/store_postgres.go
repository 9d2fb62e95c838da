package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"spothot/internal/referral/models"
	"spothot/pkg/platform/sentinel"
)

// PostgresStore persists referral edges in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed edge store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, edge *models.Edge) error {
	if edge == nil {
		return fmt.Errorf("edge is required")
	}
	query := `
		INSERT INTO referrals (referrer_id, referee_id, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := s.db.ExecContext(ctx, query,
		edge.ReferrerID,
		edge.RefereeID,
		edge.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("referee already attributed: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create referral edge: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByReferee(ctx context.Context, refereeID uuid.UUID) (*models.Edge, error) {
	query := `
		SELECT referrer_id, referee_id, created_at
		FROM referrals
		WHERE referee_id = $1
	`
	var edge models.Edge
	err := s.db.QueryRowContext(ctx, query, refereeID).Scan(
		&edge.ReferrerID,
		&edge.RefereeID,
		&edge.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("referral edge not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan referral edge: %w", err)
	}
	return &edge, nil
}

func (s *PostgresStore) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]*models.Edge, error) {
	query := `
		SELECT referrer_id, referee_id, created_at
		FROM referrals
		WHERE referrer_id = $1
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("list referral edges: %w", err)
	}
	defer rows.Close()

	var edges []*models.Edge
	for rows.Next() {
		var edge models.Edge
		if err := rows.Scan(&edge.ReferrerID, &edge.RefereeID, &edge.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral edge: %w", err)
		}
		edges = append(edges, &edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referral edges: %w", err)
	}
	return edges, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
