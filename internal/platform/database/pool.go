// Package database owns the postgres connection pool shared by the identity,
// verification, referral and waitlist stores.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const connectTimeout = 5 * time.Second

// Config tunes the pool. URL empty means "run without postgres"; New reports
// that by returning a nil Pool so callers can fall back to memory stores.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig sizes the pool for a single waitlist process. Promote holds
// row locks only briefly, so a small pool is enough.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Pool wraps *sql.DB so readiness checks and shutdown have one owner.
type Pool struct {
	db *sql.DB
}

// New opens and pings the pool. A nil, nil return means no URL was
// configured, not a failure.
func New(cfg Config) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{db: db}, nil
}

// DB exposes the underlying handle for the store constructors.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health pings the database; the readiness endpoint calls this.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("postgres not configured")
	}
	return p.db.PingContext(ctx)
}

// Close is nil-safe so the memory-store fallback path can defer it blindly.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
