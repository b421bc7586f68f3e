// Package dbtxn implements C5: the transactional write helper every
// multi-table mutation (workspace+owner membership, task+tag relations,
// team+leader membership) goes through. Cache invalidation is deliberately
// NOT performed here — the caller invalidates immediately after a
// successful commit, never before, so a concurrent stampede cannot
// repopulate the cache with pre-commit state.
package dbtxn

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kollabhq/kollab/internal/apierror"
	"github.com/kollabhq/kollab/internal/db"
)

// DefaultTimeout bounds every transaction body unless overridden.
const DefaultTimeout = 30 * time.Second

// Options configures a transaction.
type Options struct {
	Timeout   time.Duration
	Isolation pgx.TxIsoLevel
}

// DefaultOptions is read-committed with the default timeout, matching
// every caller except member removal (escalated to serializable, §4.5).
func DefaultOptions() Options {
	return Options{Timeout: DefaultTimeout, Isolation: pgx.ReadCommitted}
}

// Serializable escalates isolation for tight race windows.
func Serializable() Options {
	return Options{Timeout: DefaultTimeout, Isolation: pgx.Serializable}
}

// Fn is a transaction body. It receives a Queries bound to the transaction
// handle, so every db method works unchanged inside or outside a transaction.
type Fn[T any] func(ctx context.Context, q *db.Queries) (T, error)

// WithTransaction runs fn inside a transaction at the given isolation
// level, rolling back and returning a KindDatabase error tagged "timeout"
// if fn does not finish before opts.Timeout elapses, and rolling back on
// any error fn returns. On success the transaction is committed and the
// result returned; the caller is responsible for post-commit invalidation.
func WithTransaction[T any](ctx context.Context, pool *pgxpool.Pool, opts Options, fn Fn[T]) (T, error) {
	var zero T

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Isolation == "" {
		opts.Isolation = pgx.ReadCommitted
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: opts.Isolation})
	if err != nil {
		return zero, apierror.Wrap(apierror.KindDatabase, "TX_BEGIN_FAILED", "could not start transaction", err)
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: apierror.New(apierror.KindInternal, "TX_PANIC", "transaction body panicked")}
			}
		}()
		v, err := fn(ctx, db.New(tx))
		done <- result{val: v, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = tx.Rollback(context.Background())
		return zero, apierror.New(apierror.KindDatabase, "TX_TIMEOUT", "transaction timed out").WithDetail("kind", "timeout")
	case res := <-done:
		if res.err != nil {
			_ = tx.Rollback(context.Background())
			return zero, res.err
		}
		if err := tx.Commit(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return zero, apierror.New(apierror.KindDatabase, "TX_TIMEOUT", "transaction timed out").WithDetail("kind", "timeout")
			}
			return zero, apierror.Wrap(apierror.KindDatabase, "TX_COMMIT_FAILED", "could not commit transaction", err)
		}
		return res.val, nil
	}
}
