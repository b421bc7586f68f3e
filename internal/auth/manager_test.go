package auth

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/db"
)

const testSecret = "01234567890123456789012345678901"

type fakeSessionQueries struct {
	calls      atomic.Int64
	renewCalls atomic.Int64
	rows       map[string]db.Session
}

func newFakeSessionQueries() *fakeSessionQueries {
	return &fakeSessionQueries{rows: map[string]db.Session{}}
}

func (f *fakeSessionQueries) CreateSession(ctx context.Context, id string, principalID uuid.UUID, expiresAt time.Time) (db.Session, error) {
	s := db.Session{ID: id, PrincipalID: principalID, CreatedAt: time.Now(), ExpiresAt: expiresAt}
	f.rows[id] = s
	return s, nil
}

func (f *fakeSessionQueries) GetSession(ctx context.Context, id string) (db.Session, error) {
	f.calls.Add(1)
	s, ok := f.rows[id]
	if !ok {
		return db.Session{}, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeSessionQueries) RenewSession(ctx context.Context, id string, expiresAt time.Time) error {
	f.renewCalls.Add(1)
	s, ok := f.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.ExpiresAt = expiresAt
	f.rows[id] = s
	return nil
}

func (f *fakeSessionQueries) DeleteSession(ctx context.Context, id string) error {
	delete(f.rows, id)
	return nil
}

func newTestManager(t *testing.T, fq *fakeSessionQueries, absoluteExpiry time.Duration) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cache.NewStore(rdb, logger)
	mgr, err := NewManager(testSecret, absoluteExpiry, fq, store, logger)
	require.NoError(t, err)
	return mgr
}

func TestManagerIssueAndValidateRoundTrip(t *testing.T) {
	fq := newFakeSessionQueries()
	mgr := newTestManager(t, fq, 30*24*time.Hour)
	ctx := context.Background()

	token, s, err := mgr.Issue(ctx, uuid.New())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	res, ok := mgr.Validate(ctx, token)
	require.True(t, ok)
	require.Equal(t, s.ID, res.Session.ID)
	require.False(t, res.Fresh)
}

func TestManagerValidateUsesCacheOnSecondLookup(t *testing.T) {
	fq := newFakeSessionQueries()
	mgr := newTestManager(t, fq, 30*24*time.Hour)
	ctx := context.Background()

	token, _, err := mgr.Issue(ctx, uuid.New())
	require.NoError(t, err)

	_, ok := mgr.Validate(ctx, token)
	require.True(t, ok)
	_, ok = mgr.Validate(ctx, token)
	require.True(t, ok)

	require.Zero(t, fq.calls.Load(), "session should be served from the cache Issue warmed, not re-queried")
}

func TestManagerValidateRejectsGarbageToken(t *testing.T) {
	fq := newFakeSessionQueries()
	mgr := newTestManager(t, fq, 30*24*time.Hour)

	_, ok := mgr.Validate(context.Background(), "not-a-real-token")
	require.False(t, ok)
}

func TestManagerValidateRejectsExpiredSession(t *testing.T) {
	fq := newFakeSessionQueries()
	mgr := newTestManager(t, fq, 10*time.Millisecond)
	ctx := context.Background()

	token, _, err := mgr.Issue(ctx, uuid.New())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, ok := mgr.Validate(ctx, token)
	require.False(t, ok)
}

func TestManagerValidateSlidesRenewalWhenNearExpiry(t *testing.T) {
	fq := newFakeSessionQueries()
	absolute := 100 * time.Millisecond
	mgr := newTestManager(t, fq, absolute)
	ctx := context.Background()

	token, _, err := mgr.Issue(ctx, uuid.New())
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	res, ok := mgr.Validate(ctx, token)
	require.True(t, ok)
	require.True(t, res.Fresh, "remaining time is below 50%% of absolute expiry, renewal must trigger")
	require.NotEmpty(t, res.Token)
	require.Equal(t, int64(1), fq.renewCalls.Load())
}

func TestManagerLogoutInvalidatesSession(t *testing.T) {
	fq := newFakeSessionQueries()
	mgr := newTestManager(t, fq, 30*24*time.Hour)
	ctx := context.Background()

	token, _, err := mgr.Issue(ctx, uuid.New())
	require.NoError(t, err)

	mgr.Logout(ctx, token)

	_, ok := mgr.Validate(ctx, token)
	require.False(t, ok)
}
