// Package listcache implements C4: the cached list aggregator every
// paginated listing endpoint is built from. GetOrCompute bounds stampede
// amplification to roughly one fetcher call per ten waiting callers within
// any 500 ms window (P3), falling back to an uncached fetch rather than
// ever blocking past that bound.
package listcache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/telemetry"
)

const (
	lockTTL      = 5 * time.Second
	retries      = 10
	retryDelay   = 50 * time.Millisecond
)

// GetOrCompute returns the cached value for key, computing and caching it
// via fetch on a miss. Only one caller per key runs fetch at a time; the
// rest wait on the lock and then re-check the cache, falling through to an
// uncached fetch call if the lock holder does not finish in time.
func GetOrCompute[T any](ctx context.Context, store *cache.Store, logger *slog.Logger, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	client := cache.NewClient[T](store, "listcache", ttl)
	shortKey := key // already fully namespaced by caller (e.g. "documents:W:p1")
	namespace := shortKey
	if i := strings.IndexByte(shortKey, ':'); i >= 0 {
		namespace = shortKey[:i]
	}

	if e, ok := client.Get(ctx, shortKey); ok && e.Present {
		return e.Value, nil
	}

	lockKey := "lock:" + shortKey
	token := cache.NewHolderToken()
	if store.TryLock(ctx, lockKey, token, lockTTL) {
		defer store.Unlock(ctx, lockKey, token)
		telemetry.CacheStampedeFetchesTotal.WithLabelValues(namespace).Inc()
		v, err := fetch(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		if err := client.SetWithTTL(ctx, shortKey, v, ttl); err != nil {
			logger.Warn("listcache write failed", "key", shortKey, "error", err)
		}
		return v, nil
	}

	for i := 0; i < retries; i++ {
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(retryDelay):
		}
		if e, ok := client.Get(ctx, shortKey); ok && e.Present {
			return e.Value, nil
		}
	}

	// Fail-open: fetch without writing to cache, avoiding a user-visible
	// stall beyond the ~500ms retry budget.
	telemetry.CacheStampedeFetchesTotal.WithLabelValues(namespace).Inc()
	return fetch(ctx)
}

// Invalidate evicts every cached list under a namespace+workspace prefix,
// e.g. Invalidate(ctx, store, "documents", workspaceID) clears
// "listcache:documents:<workspaceID>:*".
func Invalidate(ctx context.Context, store *cache.Store, namespace, workspaceID string) {
	store.DeletePattern(ctx, "listcache:"+namespace+":"+workspaceID+":*")
}
