package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner runs fn inside one all-or-nothing unit of work. fn receives a
// context carrying the transaction; repos pick it up via TxFromContext.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TxFromContext returns the transaction stored in ctx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx stores tx in ctx.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, DBTxKey, tx)
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgTxRunner begins transactions on the request-scoped connection when one
// is present, falling back to the pool.
type PgTxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *PgTxRunner {
	return &PgTxRunner{pool: pool}
}

// InTx commits when fn returns nil and rolls back otherwise. Nested calls
// join the outer transaction.
func (r *PgTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	var b beginner = r.pool
	if conn := ConnFromContext(ctx); conn != nil {
		b = conn
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
