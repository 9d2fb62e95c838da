// Package tx threads a *sql.Tx through context so a store method can join a
// transaction its caller opened without changing its signature. The identity
// store consults From on every statement and falls back to the pool when no
// transaction is present.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

// WithTx binds tx to the context for downstream store calls.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From reports the transaction bound by WithTx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok
}
