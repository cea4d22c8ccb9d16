package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by pools and transactions. Repositories
// accept it so the same method serves both standalone calls and calls that
// must join an enclosing transaction, such as the event recorder riding the
// domain mutation's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxStarter starts transactions; satisfied by *pgxpool.Pool and *Pool.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxRunner runs a function inside one transaction scope. Services depend on
// this rather than on pgx so tests can substitute a pass-through runner.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(q Querier) error) error
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. A rollback failure never masks fn's error.
func WithTx(ctx context.Context, starter TxStarter, fn func(tx pgx.Tx) error) error {
	tx, err := starter.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
