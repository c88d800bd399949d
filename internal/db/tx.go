package db

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
)

// Querier is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is what the services need from a connection pool.
type Pool interface {
	Querier
	Beginner
}

// WithTx runs fn inside a transaction. Any error from fn rolls the
// transaction back and is returned unchanged; begin/commit failures are
// reported as apperr.ErrOperationFailed.
func WithTx(ctx context.Context, b Beginner, fn func(tx pgx.Tx) error) error {
	tx, err := b.Begin(ctx)
	if err != nil {
		return apperr.OperationFailed("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.OperationFailed("commit tx", err)
	}
	return nil
}

// LockKey maps a resource key onto a bigint for pg_advisory_xact_lock.
func LockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// AdvisoryLock takes a transaction scoped advisory lock on key. It blocks
// until the lock is free or ctx is done; the lock is released on commit or
// rollback.
func AdvisoryLock(ctx context.Context, tx Querier, key string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, LockKey(key)); err != nil {
		return apperr.OperationFailed(fmt.Sprintf("advisory lock %s", key), err)
	}
	return nil
}
