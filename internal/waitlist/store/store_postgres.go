package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"spothot/internal/waitlist/models"
	"spothot/pkg/platform/sentinel"
)

const selectEntry = `
	SELECT identity_id, position, created_at
	FROM waitlist
`

// PostgresStore persists waitlist entries in PostgreSQL.
//
// Move and Swap run in SERIALIZABLE transactions with the affected rows
// locked FOR UPDATE. Swap routes the occupant through scratch position 0 so
// the UNIQUE constraint on position holds at every statement. Serialization
// failures, deadlocks, and unique violations all surface as ErrConflict so
// callers retry on fresh state.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed entry store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, entry *models.Entry) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	query := `
		INSERT INTO waitlist (identity_id, position, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.IdentityID,
		entry.Position,
		entry.CreatedAt,
	)
	if err != nil {
		switch violatedConstraint(err) {
		case "waitlist_identity_id_key":
			return fmt.Errorf("identity already on waitlist: %w", sentinel.ErrAlreadyUsed)
		case "waitlist_position_key":
			return fmt.Errorf("position %d taken: %w", entry.Position, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByIdentity(ctx context.Context, identityID uuid.UUID) (*models.Entry, error) {
	return s.findOne(ctx, selectEntry+` WHERE identity_id = $1`, identityID)
}

// FindByPosition never matches the scratch row: readers only see live
// positions, which are strictly positive.
func (s *PostgresStore) FindByPosition(ctx context.Context, position int) (*models.Entry, error) {
	if position <= 0 {
		return nil, fmt.Errorf("waitlist entry not found: %w", sentinel.ErrNotFound)
	}
	return s.findOne(ctx, selectEntry+` WHERE position = $1`, position)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&entry.IdentityID,
		&entry.Position,
		&entry.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("waitlist entry not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan waitlist entry: %w", err)
	}
	return &entry, nil
}

func (s *PostgresStore) MaxPosition(ctx context.Context) (int, bool, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(position) FROM waitlist WHERE position > 0`).Scan(&max)
	if err != nil {
		return 0, false, fmt.Errorf("max waitlist position: %w", err)
	}
	return int(max.Int64), max.Valid, nil
}

func (s *PostgresStore) Move(ctx context.Context, identityID uuid.UUID, from, to int) error {
	return s.inSerializableTx(ctx, func(tx *sql.Tx) error {
		current, err := lockPosition(ctx, tx, identityID)
		if err != nil {
			return err
		}
		if current != from {
			return fmt.Errorf("entry moved to %d since read: %w", current, sentinel.ErrConflict)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE waitlist SET position = $1 WHERE identity_id = $2`, to, identityID)
		if err != nil {
			if violatedConstraint(err) == "waitlist_position_key" {
				return fmt.Errorf("position %d taken: %w", to, sentinel.ErrConflict)
			}
			return fmt.Errorf("move waitlist entry: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Swap(ctx context.Context, moverID uuid.UUID, moverFrom int, occupantID uuid.UUID, occupantFrom int) error {
	return s.inSerializableTx(ctx, func(tx *sql.Tx) error {
		// Lock both rows in one statement, ordered by identity_id so two
		// concurrent swaps over the same pair cannot deadlock.
		rows, err := tx.QueryContext(ctx, `
			SELECT identity_id, position
			FROM waitlist
			WHERE identity_id IN ($1, $2)
			ORDER BY identity_id
			FOR UPDATE
		`, moverID, occupantID)
		if err != nil {
			return fmt.Errorf("lock waitlist entries: %w", err)
		}
		positions := make(map[uuid.UUID]int, 2)
		for rows.Next() {
			var id uuid.UUID
			var position int
			if err := rows.Scan(&id, &position); err != nil {
				rows.Close()
				return fmt.Errorf("scan locked entry: %w", err)
			}
			positions[id] = position
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate locked entries: %w", err)
		}
		if len(positions) != 2 {
			return fmt.Errorf("waitlist entry not found: %w", sentinel.ErrNotFound)
		}
		if positions[moverID] != moverFrom || positions[occupantID] != occupantFrom {
			return fmt.Errorf("positions changed since read: %w", sentinel.ErrConflict)
		}

		// Park the occupant at scratch position 0 so the mover can take its
		// slot without tripping the unique constraint.
		steps := []struct {
			position int
			identity uuid.UUID
		}{
			{0, occupantID},
			{occupantFrom, moverID},
			{moverFrom, occupantID},
		}
		for _, step := range steps {
			_, err := tx.ExecContext(ctx,
				`UPDATE waitlist SET position = $1 WHERE identity_id = $2`,
				step.position, step.identity)
			if err != nil {
				// A disjoint concurrent swap holds scratch 0 or one of the
				// target slots; retry on fresh state.
				if violatedConstraint(err) != "" {
					return fmt.Errorf("swap collided: %w", sentinel.ErrConflict)
				}
				return fmt.Errorf("swap waitlist entries: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntry+` WHERE position > 0 ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list waitlist entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		var entry models.Entry
		if err := rows.Scan(&entry.IdentityID, &entry.Position, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate waitlist entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) inSerializableTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin waitlist tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if isRetryable(err) {
			return fmt.Errorf("waitlist tx serialization failure: %w", sentinel.ErrConflict)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isRetryable(err) {
			return fmt.Errorf("waitlist tx serialization failure: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("commit waitlist tx: %w", err)
	}
	return nil
}

func lockPosition(ctx context.Context, tx *sql.Tx, identityID uuid.UUID) (int, error) {
	var position int
	err := tx.QueryRowContext(ctx,
		`SELECT position FROM waitlist WHERE identity_id = $1 FOR UPDATE`, identityID,
	).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("waitlist entry not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lock waitlist entry: %w", err)
	}
	return position, nil
}

func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}

// isRetryable reports serialization failures (40001) and deadlocks (40P01),
// which commit surfaces as ErrConflict for the caller's retry loop.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}
