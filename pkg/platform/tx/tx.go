// Package tx carries a SQL transaction through a context so that stores
// called inside a unit of work join it instead of opening their own.
package tx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the part of *sql.DB and *sql.Tx the stores query through.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// FromContext returns the transaction bound to ctx, if any.
func FromContext(ctx context.Context) (*sql.Tx, bool) {
	t, ok := ctx.Value(txKey{}).(*sql.Tx)
	return t, ok && t != nil
}

// Conn returns the transaction bound to ctx, or db when there is none.
func Conn(ctx context.Context, db *sql.DB) DBTX {
	if t, ok := FromContext(ctx); ok {
		return t
	}
	return db
}

// Run calls fn inside a transaction bound to the context it receives. When
// ctx already carries one, fn joins it and the owner decides the outcome.
// Any error from fn rolls back.
func Run(ctx context.Context, db *sql.DB, fn func(ctx context.Context, t *sql.Tx) error) error {
	if outer, ok := FromContext(ctx); ok {
		return fn(ctx, outer)
	}

	t, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer func() { _ = t.Rollback() }()

	if err := fn(context.WithValue(ctx, txKey{}, t), t); err != nil {
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
