package cache

import (
	"context"
	"log/slog"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(rdb, logger)
}

func TestGetSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetRaw(ctx, "k1", []byte("hello"), time.Minute))
	v, ok := s.GetRaw(ctx, "k1")
	require.True(t, ok)
	require.Equal(t, "hello", string(v))
}

func TestGetMissingKeyReturnsAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok := s.GetRaw(ctx, "nope")
	require.False(t, ok)
}

func TestSetRejectsZeroTTL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.SetRaw(ctx, "k1", []byte("x"), 0)
	require.ErrorIs(t, err, ErrZeroTTL)
}

func TestDeletePatternRemovesMatches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetRaw(ctx, "membership:ws1:u1", []byte("a"), time.Minute))
	require.NoError(t, s.SetRaw(ctx, "membership:ws1:u2", []byte("b"), time.Minute))
	require.NoError(t, s.SetRaw(ctx, "membership:ws2:u1", []byte("c"), time.Minute))

	s.DeletePattern(ctx, "membership:ws1:*")

	_, ok := s.GetRaw(ctx, "membership:ws1:u1")
	require.False(t, ok)
	_, ok = s.GetRaw(ctx, "membership:ws1:u2")
	require.False(t, ok)
	_, ok = s.GetRaw(ctx, "membership:ws2:u1")
	require.True(t, ok)
}

func TestIncrementSetsExpiryOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, err := s.Increment(ctx, "rl:auth:u1", 60)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
	ttl, ok := s.TTL(ctx, "rl:auth:u1")
	require.True(t, ok, "first increment must set an expiry")
	require.LessOrEqual(t, ttl, 60*time.Second)

	// Shorten the window so a reset back to 60s would be visible.
	require.NoError(t, s.rdb.Expire(ctx, "rl:auth:u1", 30*time.Second).Err())

	v, err = s.Increment(ctx, "rl:auth:u1", 60)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)
	ttl, ok = s.TTL(ctx, "rl:auth:u1")
	require.True(t, ok)
	require.LessOrEqual(t, ttl, 30*time.Second, "a later increment must not reset the expiry")
}

func TestTryLockAndUnlock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tokenA := NewHolderToken()
	tokenB := NewHolderToken()

	require.True(t, s.TryLock(ctx, "lock:x", tokenA, 5*time.Second))
	require.False(t, s.TryLock(ctx, "lock:x", tokenB, 5*time.Second), "lock already held")

	s.Unlock(ctx, "lock:x", tokenB)
	require.False(t, s.TryLock(ctx, "lock:x", tokenB, 5*time.Second), "unlock with wrong token must not release")

	s.Unlock(ctx, "lock:x", tokenA)
	require.True(t, s.TryLock(ctx, "lock:x", tokenB, 5*time.Second), "unlock with correct token releases")
}

func TestTypedClientNegativeCaching(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := NewClient[string](s, "principal", time.Minute)

	require.NoError(t, c.SetAbsent(ctx, "missing-id", 30*time.Second))

	e, ok := c.Get(ctx, "missing-id")
	require.True(t, ok, "absent sentinel must be a cache hit")
	require.False(t, e.Present)
}

func TestTypedClientPositiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := NewClient[int](s, "counter", time.Minute)

	require.NoError(t, c.Set(ctx, "a", 42))

	e, ok := c.Get(ctx, "a")
	require.True(t, ok)
	require.True(t, e.Present)
	require.Equal(t, 42, e.Value)
}

func TestTypedClientNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c1 := NewClient[int](s, "ns1", time.Minute)
	c2 := NewClient[int](s, "ns2", time.Minute)

	require.NoError(t, c1.Set(ctx, "a", 1))
	require.NoError(t, c2.Set(ctx, "a", 2))

	e1, _ := c1.Get(ctx, "a")
	e2, _ := c2.Get(ctx, "a")
	require.Equal(t, 1, e1.Value)
	require.Equal(t, 2, e2.Value)
}
