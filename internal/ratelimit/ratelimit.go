// Package ratelimit implements C2: a fixed-window request limiter keyed by
// (bucket, principal), backed by the cache's atomic Increment. It fails
// open on cache outage — a limiter that cannot reach its counter store
// never blocks legitimate traffic, per §4.2.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/telemetry"
)

// Bucket is a named rate-limit configuration.
type Bucket struct {
	Name       string
	Window     time.Duration
	MaxRequest int
}

// Buckets is the authoritative static table (§4.2). create_* is expanded
// per resource type by callers via ForResource, since its max varies 3-30
// by type.
var Buckets = map[string]Bucket{
	"auth":         {Name: "auth", Window: 15 * time.Minute, MaxRequest: 5},
	"export":       {Name: "export", Window: time.Minute, MaxRequest: 10},
	"search":       {Name: "search", Window: time.Minute, MaxRequest: 100},
	"api":          {Name: "api", Window: time.Hour, MaxRequest: 1000},
	"upload":       {Name: "upload", Window: time.Minute, MaxRequest: 20},
	"file_upload":  {Name: "file_upload", Window: time.Minute, MaxRequest: 10},
	"update":       {Name: "update", Window: time.Minute, MaxRequest: 60},
	"delete":       {Name: "delete", Window: time.Minute, MaxRequest: 10},
	"notification": {Name: "notification", Window: time.Minute, MaxRequest: 100},
}

// createResourceMax declares the per-resource-type max for the create_*
// bucket family; resource types absent here fall back to createDefaultMax.
var createResourceMax = map[string]int{
	"workspace": 3,
	"document":  30,
	"task":      30,
	"project":   10,
	"team":      10,
	"note":      30,
}

const createDefaultMax = 10
const createWindow = time.Minute

// ForResource returns the create_* bucket for a specific resource type,
// e.g. "document" -> create_document with its declared max.
func ForResource(resourceType string) Bucket {
	max, ok := createResourceMax[resourceType]
	if !ok {
		max = createDefaultMax
	}
	return Bucket{Name: "create_" + resourceType, Window: createWindow, MaxRequest: max}
}

// AnonymousPrincipal is the key generator's fallback when no forwarded
// client address is available either.
const AnonymousPrincipal = "anonymous"

// Result is the outcome of a Check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	// Degraded is true when the cache could not be reached and the request
	// was allowed purely by fail-open policy.
	Degraded bool
}

// Limiter checks and records bucket usage against the shared cache store.
type Limiter struct {
	store  *cache.Store
	logger *slog.Logger
}

// New creates a Limiter.
func New(store *cache.Store, logger *slog.Logger) *Limiter {
	return &Limiter{store: store, logger: logger}
}

// Check increments the counter for (bucket, principal) and reports whether
// the request is allowed. A count of exactly MaxRequest still allows
// (B2); MaxRequest+1 blocks.
func (l *Limiter) Check(ctx context.Context, bucket Bucket, principal string) Result {
	key := fmt.Sprintf("rate_limit:%s:%s", bucket.Name, principal)

	count, err := l.store.Increment(ctx, key, int(bucket.Window.Seconds()))
	if err != nil {
		l.logger.Warn("rate limiter cache unreachable, failing open", "bucket", bucket.Name, "error", err)
		return Result{Allowed: true, Limit: bucket.MaxRequest, Remaining: bucket.MaxRequest, Degraded: true}
	}

	if int(count) > bucket.MaxRequest {
		telemetry.RateLimitBlockedTotal.WithLabelValues(bucket.Name).Inc()
		ttl := l.ttlOrWindow(ctx, key, bucket.Window)
		return Result{
			Allowed:    false,
			Limit:      bucket.MaxRequest,
			Remaining:  0,
			ResetAt:    time.Now().Add(ttl),
			RetryAfter: ttl,
		}
	}

	remaining := bucket.MaxRequest - int(count)
	if remaining < 0 {
		remaining = 0
	}
	ttl := l.ttlOrWindow(ctx, key, bucket.Window)
	return Result{
		Allowed:   true,
		Limit:     bucket.MaxRequest,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}
}

func (l *Limiter) ttlOrWindow(ctx context.Context, key string, window time.Duration) time.Duration {
	ttl, ok := l.store.TTL(ctx, key)
	if !ok || ttl <= 0 {
		return window
	}
	return ttl
}

// KeyPrincipal resolves the key generator precedence: authenticated
// principal id, else forwarded client address, else "anonymous".
func KeyPrincipal(principalID, forwardedAddr string) string {
	if principalID != "" {
		return principalID
	}
	if forwardedAddr != "" {
		return forwardedAddr
	}
	return AnonymousPrincipal
}
