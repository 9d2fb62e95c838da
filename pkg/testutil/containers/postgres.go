//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"spothot/migrations"
)

// PostgresContainer wraps a testcontainers Postgres instance.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts a new Postgres container with migrations applied.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("spothot_test"),
		postgres.WithUsername("spothot"),
		postgres.WithPassword("spothot_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	// No t.Cleanup: the container is shared via the singleton Manager; Ryuk
	// reaps it when the test process exits.
	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}
}

// TruncateAll clears every domain table between tests. CASCADE handles the
// foreign keys from waitlist/referrals/verifications into identities.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	for _, table := range []string{"waitlist", "referrals", "verifications", "identities"} {
		if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

// CreateTestIdentity inserts an identity row and returns its ID.
func (p *PostgresContainer) CreateTestIdentity(ctx context.Context, t testing.TB, referralCount int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO identities (id, name, email, referral_code, referral_count, is_verified, created_at)
		VALUES ($1, 'Test User', $2, $3, $4, true, NOW())
	`, id, "test-"+uuid.NewString()+"@example.com", uuid.NewString()[:8], referralCount)
	if err != nil {
		t.Fatalf("CreateTestIdentity: %v", err)
	}
	return id
}
