package membership

import (
	"context"
	"errors"
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

type fakeQueries struct {
	calls atomic.Int64
	rows  map[string]db.Membership
}

func (f *fakeQueries) GetMembership(ctx context.Context, workspaceID, principalID uuid.UUID) (db.Membership, error) {
	f.calls.Add(1)
	m, ok := f.rows[key(principalID, workspaceID)]
	if !ok {
		return db.Membership{}, pgx.ErrNoRows
	}
	return m, nil
}

func newTestResolver(t *testing.T, fq *fakeQueries) *Resolver {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cache.NewStore(rdb, logger)
	return New(store, fq, logger)
}

func TestResolvePositiveIsCached(t *testing.T) {
	ws := uuid.New()
	p := uuid.New()
	fq := &fakeQueries{rows: map[string]db.Membership{
		key(p, ws): {WorkspaceID: ws, PrincipalID: p, Role: db.RoleEditor},
	}}
	r := newTestResolver(t, fq)
	ctx := context.Background()

	m := r.Resolve(ctx, ws, p, "", "", nil)
	require.False(t, m.Denied)
	require.Equal(t, db.RoleEditor, m.Role)

	m = r.Resolve(ctx, ws, p, "", "", nil)
	require.False(t, m.Denied)
	require.Equal(t, int64(1), fq.calls.Load(), "second resolve must hit cache, not source of truth")
}

func TestResolveNegativeIsCached(t *testing.T) {
	ws := uuid.New()
	p := uuid.New()
	fq := &fakeQueries{rows: map[string]db.Membership{}}
	r := newTestResolver(t, fq)
	ctx := context.Background()

	m := r.Resolve(ctx, ws, p, "", "", nil)
	require.True(t, m.Denied)

	m = r.Resolve(ctx, ws, p, "", "", nil)
	require.True(t, m.Denied)
	require.Equal(t, int64(1), fq.calls.Load(), "negative result must be cached too")
}

func TestResolveMinRoleDeniesBelowThreshold(t *testing.T) {
	ws := uuid.New()
	p := uuid.New()
	fq := &fakeQueries{rows: map[string]db.Membership{
		key(p, ws): {WorkspaceID: ws, PrincipalID: p, Role: db.RoleViewer},
	}}
	r := newTestResolver(t, fq)
	ctx := context.Background()

	m := r.Resolve(ctx, ws, p, "", db.RoleAdmin, nil)
	require.True(t, m.Denied)

	m = r.Resolve(ctx, ws, p, "", db.RoleViewer, nil)
	require.False(t, m.Denied)
}

func TestSystemAdminOverrideBypassesResolver(t *testing.T) {
	ws := uuid.New()
	p := uuid.New()
	fq := &fakeQueries{rows: map[string]db.Membership{}}
	r := newTestResolver(t, fq)
	ctx := context.Background()

	admin := func(principalID, email string) bool { return email == "root@kollab.dev" }
	m := r.Resolve(ctx, ws, p, "root@kollab.dev", db.RoleOwner, admin)
	require.False(t, m.Denied)
	require.Equal(t, db.RoleOwner, m.Role)
	require.True(t, m.SystemAdmin)
	require.Zero(t, fq.calls.Load(), "override must not consult the resolver at all")
}

func TestInvalidateEvictsEntryAndList(t *testing.T) {
	ws := uuid.New()
	p := uuid.New()
	fq := &fakeQueries{rows: map[string]db.Membership{
		key(p, ws): {WorkspaceID: ws, PrincipalID: p, Role: db.RoleAdmin},
	}}
	r := newTestResolver(t, fq)
	ctx := context.Background()

	r.Resolve(ctx, ws, p, "", "", nil)
	require.Equal(t, int64(1), fq.calls.Load())

	r.Invalidate(ctx, ws, p, false, "", nil)
	r.Resolve(ctx, ws, p, "", "", nil)
	require.Equal(t, int64(2), fq.calls.Load(), "invalidation must force a fresh source-of-truth read")
}

func TestResolveDeniedErrorFromQueryIsTreatedAsAbsent(t *testing.T) {
	ws := uuid.New()
	p := uuid.New()
	fq := &erroringQueries{err: errors.New("connection reset")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := cache.NewStore(rdb, logger)
	r := New(store, fq, logger)

	m := r.Resolve(context.Background(), ws, p, "", "", nil)
	require.True(t, m.Denied)
}

type erroringQueries struct{ err error }

func (e *erroringQueries) GetMembership(ctx context.Context, workspaceID, principalID uuid.UUID) (db.Membership, error) {
	return db.Membership{}, e.err
}

func TestResolveRespectsContextCancellation(t *testing.T) {
	ws := uuid.New()
	p := uuid.New()
	fq := &fakeQueries{rows: map[string]db.Membership{}}
	r := newTestResolver(t, fq)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(5 * time.Millisecond)

	m := r.Resolve(ctx, ws, p, "", "", nil)
	require.True(t, m.Denied)
	require.Zero(t, fq.calls.Load(), "a cancelled context must not reach the source of truth")
}
