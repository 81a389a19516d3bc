package pool

import (
	"context"
	"database/sql"
)

// Querier is the subset of *sql.DB/*sql.Tx the PostgresStore needs, letting
// every query run unmodified whether or not it is inside a transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type txKey struct{}

// txFromContext extracts the active transaction, if any.
func txFromContext(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// contextWithTx attaches tx to ctx for Querier to pick up downstream.
func contextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}
