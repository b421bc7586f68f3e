//go:build integration

package dbtxn_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/kollabhq/kollab/internal/db"
	"github.com/kollabhq/kollab/internal/dbtxn"
)

// These tests exercise C5 against a real Postgres instance (P4/S6: a
// transaction body that errors or times out must leave no partial writes).
// Point TEST_DATABASE_URL at a scratch database before running with
// -tags integration; the suite creates and drops its own table.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping dbtxn integration tests")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), `CREATE TABLE IF NOT EXISTS dbtxn_test_rows (id INT PRIMARY KEY, label TEXT NOT NULL)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS dbtxn_test_rows`)
	})

	return pool
}

func rowCount(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(), `SELECT count(*) FROM dbtxn_test_rows`).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestWithTransaction_CommitsOnSuccess(t *testing.T) {
	pool := testPool(t)

	_, err := dbtxn.WithTransaction(context.Background(), pool, dbtxn.DefaultOptions(), func(ctx context.Context, q *db.Queries) (struct{}, error) {
		_, execErr := pool.Exec(ctx, `INSERT INTO dbtxn_test_rows (id, label) VALUES (1, 'a'), (2, 'b')`)
		return struct{}{}, execErr
	})
	require.NoError(t, err)
	require.Equal(t, 2, rowCount(t, pool))
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	pool := testPool(t)
	sentinel := errors.New("body failed after partial writes")

	_, err := dbtxn.WithTransaction(context.Background(), pool, dbtxn.DefaultOptions(), func(ctx context.Context, q *db.Queries) (struct{}, error) {
		if _, execErr := pool.Exec(ctx, `INSERT INTO dbtxn_test_rows (id, label) VALUES (1, 'a')`); execErr != nil {
			return struct{}{}, execErr
		}
		return struct{}{}, sentinel
	})
	require.Error(t, err)
	require.Equal(t, 0, rowCount(t, pool), "a failed body must leave no rows behind")
}

func TestWithTransaction_RollsBackOnTimeout(t *testing.T) {
	pool := testPool(t)

	opts := dbtxn.Options{Timeout: 20 * time.Millisecond, Isolation: dbtxn.DefaultOptions().Isolation}
	_, err := dbtxn.WithTransaction(context.Background(), pool, opts, func(ctx context.Context, q *db.Queries) (struct{}, error) {
		if _, execErr := pool.Exec(context.Background(), `INSERT INTO dbtxn_test_rows (id, label) VALUES (1, 'a')`); execErr != nil {
			return struct{}{}, execErr
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return struct{}{}, ctx.Err()
	})
	require.Error(t, err)
	require.Equal(t, 0, rowCount(t, pool), "a timed-out body must leave no rows behind")
}

func TestWithTransaction_SerializableConflictRollsBackLoser(t *testing.T) {
	pool := testPool(t)

	_, err := pool.Exec(context.Background(), `INSERT INTO dbtxn_test_rows (id, label) VALUES (1, 'initial')`)
	require.NoError(t, err)

	started := make(chan struct{}, 2)
	results := make(chan error, 2)

	run := func(label string) {
		_, err := dbtxn.WithTransaction(context.Background(), pool, dbtxn.Serializable(), func(ctx context.Context, q *db.Queries) (struct{}, error) {
			var n int
			if scanErr := pool.QueryRow(ctx, `SELECT count(*) FROM dbtxn_test_rows`).Scan(&n); scanErr != nil {
				return struct{}{}, scanErr
			}
			started <- struct{}{}
			<-started // let both transactions observe the same snapshot before either writes
			_, execErr := pool.Exec(ctx, `UPDATE dbtxn_test_rows SET label = $1 WHERE id = 1`, label)
			return struct{}{}, execErr
		})
		results <- err
	}

	go run("writer-a")
	go run("writer-b")

	first, second := <-results, <-results
	require.True(t, first == nil || second == nil, "at least one serializable writer must succeed")
}
