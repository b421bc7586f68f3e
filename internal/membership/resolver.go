// Package membership implements C3: cache-fronted workspace membership
// resolution with negative-sentinel caching, stampede-protected source-of-
// truth fallback, and the system-admin override.
package membership

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kollabhq/kollab/internal/cache"
	"github.com/kollabhq/kollab/internal/db"
)

// ttl is the duration both positive and negative membership entries are
// cached for — equal TTLs prevent negative-lookup amplification (§4.3).
const ttl = 30 * time.Minute

const (
	lockTTL      = 5 * time.Second
	lockRetries  = 10
	lockInterval = 50 * time.Millisecond
)

// Membership is the resolved result: a real role, or Denied=true.
type Membership struct {
	WorkspaceID uuid.UUID
	PrincipalID uuid.UUID
	Role        db.Role
	Denied      bool
	// SystemAdmin is true when this result came from the admin override,
	// never from the resolver's own cache.
	SystemAdmin bool
}

// AdminOverride evaluates whether a principal is a configured system
// admin — a closure so this package does not depend on internal/config.
type AdminOverride func(principalID, email string) bool

// Queries is the subset of db.Queries the resolver needs, so tests can
// supply a fake without a live database.
type Queries interface {
	GetMembership(ctx context.Context, workspaceID, principalID uuid.UUID) (db.Membership, error)
}

// Resolver resolves and caches workspace membership.
type Resolver struct {
	cache   *cache.Client[db.Membership]
	queries Queries
	logger  *slog.Logger
}

// New creates a Resolver. cacheStore backs the member: namespace.
func New(store *cache.Store, queries Queries, logger *slog.Logger) *Resolver {
	return &Resolver{
		cache:   cache.NewClient[db.Membership](store, "member", ttl),
		queries: queries,
		logger:  logger,
	}
}

func key(principalID, workspaceID uuid.UUID) string {
	return principalID.String() + ":" + workspaceID.String()
}

// Resolve implements §4.3's algorithm, including the pre-resolver
// system-admin override. minRole is optional: pass "" to skip the
// monotonic role comparison and just return the actual membership.
func (r *Resolver) Resolve(ctx context.Context, workspaceID, principalID uuid.UUID, principalEmail string, minRole db.Role, admin AdminOverride) Membership {
	if admin != nil && admin(principalID.String(), principalEmail) {
		return Membership{WorkspaceID: workspaceID, PrincipalID: principalID, Role: db.RoleOwner, SystemAdmin: true}
	}

	m, found := r.resolveMembership(ctx, workspaceID, principalID)
	if !found {
		return Membership{WorkspaceID: workspaceID, PrincipalID: principalID, Denied: true}
	}
	if minRole != "" && !m.Role.AtLeast(minRole) {
		return Membership{WorkspaceID: workspaceID, PrincipalID: principalID, Role: m.Role, Denied: true}
	}
	return Membership{WorkspaceID: workspaceID, PrincipalID: principalID, Role: m.Role}
}

// resolveMembership runs the cache-then-source-of-truth-with-stampede-
// protection algorithm and reports whether a positive membership exists.
func (r *Resolver) resolveMembership(ctx context.Context, workspaceID, principalID uuid.UUID) (db.Membership, bool) {
	k := key(principalID, workspaceID)

	if e, ok := r.cache.Get(ctx, k); ok {
		return e.Value, e.Present
	}

	lockKey := "lock:member:" + k
	token := cache.NewHolderToken()
	if r.cache.Store().TryLock(ctx, lockKey, token, lockTTL) {
		defer r.cache.Store().Unlock(ctx, lockKey, token)
		return r.fetchAndCache(ctx, workspaceID, principalID, k)
	}

	for i := 0; i < lockRetries; i++ {
		select {
		case <-ctx.Done():
			return db.Membership{}, false
		case <-time.After(lockInterval):
		}
		if e, ok := r.cache.Get(ctx, k); ok {
			return e.Value, e.Present
		}
	}

	// Fail-open: proceed without the lock. The query is idempotent so a
	// concurrent duplicate fetch is harmless, it simply isn't cached twice.
	m, found := r.queryMembership(ctx, workspaceID, principalID)
	return m, found
}

func (r *Resolver) fetchAndCache(ctx context.Context, workspaceID, principalID uuid.UUID, k string) (db.Membership, bool) {
	m, found := r.queryMembership(ctx, workspaceID, principalID)
	if found {
		if err := r.cache.Set(ctx, k, m); err != nil {
			r.logger.Warn("membership cache write failed", "error", err)
		}
	} else {
		if err := r.cache.SetAbsent(ctx, k, ttl); err != nil {
			r.logger.Warn("membership negative-cache write failed", "error", err)
		}
	}
	return m, found
}

func (r *Resolver) queryMembership(ctx context.Context, workspaceID, principalID uuid.UUID) (db.Membership, bool) {
	m, err := r.queries.GetMembership(ctx, workspaceID, principalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Membership{}, false
		}
		r.logger.Error("membership lookup failed", "error", err)
		return db.Membership{}, false
	}
	return m, true
}

// Invalidate evicts the single (principal, workspace) entry and the
// workspace's member list, per I5. warmUp optionally re-resolves in the
// background so the next request hits a warm cache; failures are swallowed.
func (r *Resolver) Invalidate(ctx context.Context, workspaceID, principalID uuid.UUID, warmUp bool, principalEmail string, admin AdminOverride) {
	r.cache.Delete(ctx, key(principalID, workspaceID))
	r.cache.Store().Delete(ctx, "members:"+workspaceID.String())

	if !warmUp {
		return
	}
	go func() {
		warmCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Warn("membership warm-up panicked, swallowed", "recover", rec)
			}
		}()
		r.Resolve(warmCtx, workspaceID, principalID, principalEmail, "", admin)
	}()
}

// InvalidateWorkspace evicts every membership entry for a deleted
// workspace via pattern delete, per I5.
func (r *Resolver) InvalidateWorkspace(ctx context.Context, workspaceID uuid.UUID) {
	r.cache.Store().DeletePattern(ctx, "member:*:"+workspaceID.String())
	r.cache.Store().Delete(ctx, "members:"+workspaceID.String())
}
