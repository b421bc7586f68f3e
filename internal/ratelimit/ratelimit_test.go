package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kollabhq/kollab/internal/cache"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cache.NewStore(rdb, logger)
	return New(store, logger)
}

func TestCheckAllowsUpToMax(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t)
	bucket := Bucket{Name: "test", Window: time.Minute, MaxRequest: 3}

	for i := 0; i < 3; i++ {
		res := l.Check(ctx, bucket, "user-1")
		require.True(t, res.Allowed, "request %d should be allowed", i+1)
	}
}

func TestCheckBlocksAfterMax(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t)
	bucket := Bucket{Name: "test", Window: time.Minute, MaxRequest: 3}

	for i := 0; i < 3; i++ {
		l.Check(ctx, bucket, "user-1")
	}
	res := l.Check(ctx, bucket, "user-1")
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestCheckIsolatesByPrincipal(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t)
	bucket := Bucket{Name: "test", Window: time.Minute, MaxRequest: 1}

	res1 := l.Check(ctx, bucket, "user-1")
	res2 := l.Check(ctx, bucket, "user-2")
	require.True(t, res1.Allowed)
	require.True(t, res2.Allowed)
}

func TestKeyPrincipalPrecedence(t *testing.T) {
	require.Equal(t, "p1", KeyPrincipal("p1", "1.2.3.4"))
	require.Equal(t, "1.2.3.4", KeyPrincipal("", "1.2.3.4"))
	require.Equal(t, AnonymousPrincipal, KeyPrincipal("", ""))
}

func TestForResourceMaxVariesByType(t *testing.T) {
	require.Equal(t, 3, ForResource("workspace").MaxRequest)
	require.Equal(t, 30, ForResource("document").MaxRequest)
	require.Equal(t, createDefaultMax, ForResource("unknown_type").MaxRequest)
}
