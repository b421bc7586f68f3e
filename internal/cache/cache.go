// Package cache implements C1: a typed key/value store with TTLs, atomic
// increment, a distributed mutex, and pattern deletion, fronting an external
// Redis-compatible datastore. Every operation that cannot reach the
// datastore fails benign: reads return absent, writes log and return nil, so
// callers are correct when the cache behaves as empty (§4.1).
package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrZeroTTL is returned by Set when ttl <= 0.
var ErrZeroTTL = errors.New("cache: ttl must be positive")

// Store wraps a Redis-compatible client with the primitive operations every
// namespaced, typed cache (Client[T]) and every other core component (C2-C4)
// is built from.
type Store struct {
	rdb    redis.UniversalClient
	logger *slog.Logger
}

// NewStore creates a Store.
func NewStore(rdb redis.UniversalClient, logger *slog.Logger) *Store {
	return &Store{rdb: rdb, logger: logger}
}

// GetRaw returns the raw bytes for key, or (nil, false) if absent or on any
// datastore failure — reads are benign on failure per §4.1.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, bool) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("cache get failed, treating as absent", "key", key, "error", err)
		}
		return nil, false
	}
	return b, true
}

// SetRaw stores raw bytes under key with an absolute positive ttl. ttl <= 0
// is rejected without reaching the datastore.
func (s *Store) SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrZeroTTL
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Error("cache set failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Delete removes key. Failures are logged and swallowed: deletion failing
// against an already-down cache does not change user-visible behavior.
func (s *Store) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("cache delete failed", "keys", keys, "error", err)
	}
}

// DeletePattern removes every key matching glob using cursor-based SCAN, never
// a blocking KEYS call, per the design note on pattern deletion. Idempotent:
// deleting an already-absent key is a no-op.
func (s *Store) DeletePattern(ctx context.Context, glob string) {
	var cursor uint64
	const scanCount = 100
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, glob, scanCount).Result()
		if err != nil {
			s.logger.Warn("cache scan failed during pattern delete", "pattern", glob, "error", err)
			return
		}
		if len(keys) > 0 {
			s.Delete(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// Increment atomically increments key and returns the new value. On the
// first increment the key acquires a TTL of windowSeconds; subsequent
// increments do not reset it (fixed-window counter semantics, §4.2).
func (s *Store) Increment(ctx context.Context, key string, windowSeconds int) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, time.Duration(windowSeconds)*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	return incr.Val(), nil
}

// TTL returns the remaining time-to-live for key. ok is false if the key is
// absent or the datastore could not be reached.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool) {
	ttl, err := s.rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return 0, false
	}
	return ttl, true
}

// TryLock attempts to acquire the distributed mutex at key, storing
// holderToken for ttl. Succeeds only if the key was absent (SETNX+expiry).
func (s *Store) TryLock(ctx context.Context, key, holderToken string, ttl time.Duration) bool {
	ok, err := s.rdb.SetNX(ctx, key, holderToken, ttl).Result()
	if err != nil {
		s.logger.Warn("cache lock attempt failed", "key", key, "error", err)
		return false
	}
	return ok
}

// unlockScript compares the stored token before deleting, so a holder never
// releases a lock it does not own.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Unlock releases the lock at key only if holderToken matches the stored
// value; otherwise it is a no-op.
func (s *Store) Unlock(ctx context.Context, key, holderToken string) {
	if err := unlockScript.Run(ctx, s.rdb, []string{key}, holderToken).Err(); err != nil {
		s.logger.Warn("cache unlock failed", "key", key, "error", err)
	}
}

// NewHolderToken generates a random token for use with TryLock/Unlock.
func NewHolderToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Stats summarizes the cache's current state for the readiness/metrics
// surface (C9).
type Stats struct {
	KeyCount   int64
	MemoryUsed int64
	HitRate    float64
	LatencyMs  float64
}

// Stats queries the datastore for operational metrics. Returns the zero
// value (not an error) on failure, consistent with read-path fail-open.
func (s *Store) Stats(ctx context.Context) Stats {
	start := time.Now()
	var out Stats

	if n, err := s.rdb.DBSize(ctx).Result(); err == nil {
		out.KeyCount = n
	}

	if info, err := s.rdb.Info(ctx, "memory").Result(); err == nil {
		out.MemoryUsed = parseUsedMemory(info)
	}

	out.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
	return out
}

// Ping reaches the datastore, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
