package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kollabhq/kollab/internal/telemetry"
)

// Entry is the tagged union every typed cache value is wrapped in, so a
// cached "this does not exist" is distinguishable from "never looked up" —
// the bare zero value of V can otherwise be a legitimate result, per the
// negative-caching design note.
type Entry[V any] struct {
	Present bool
	Value   V
}

// Found wraps a present value.
func Found[V any](v V) Entry[V] { return Entry[V]{Present: true, Value: v} }

// Absent is the negative-cache sentinel for V.
func Absent[V any]() Entry[V] { return Entry[V]{Present: false} }

// Client is a namespaced, typed view over a Store. Every key Client touches
// is prefixed with namespace + ":", so two components can never collide on a
// raw string key even if they pick the same logical name.
type Client[T any] struct {
	store     *Store
	namespace string
	ttl       time.Duration
}

// NewClient builds a typed client bound to namespace, defaulting every Set
// to ttl unless SetWithTTL is used.
func NewClient[T any](store *Store, namespace string, ttl time.Duration) *Client[T] {
	return &Client[T]{store: store, namespace: namespace, ttl: ttl}
}

func (c *Client[T]) key(id string) string {
	return c.namespace + ":" + id
}

// Get returns the cached Entry for id. A cache miss and a cached negative
// result are distinguished by the bool return: true means Entry is
// authoritative (whether Present or not), false means nothing was cached at
// all and the caller must consult the source of truth.
func (c *Client[T]) Get(ctx context.Context, id string) (Entry[T], bool) {
	raw, ok := c.store.GetRaw(ctx, c.key(id))
	if !ok {
		telemetry.CacheMissesTotal.WithLabelValues(c.namespace).Inc()
		return Entry[T]{}, false
	}
	var e Entry[T]
	if err := json.Unmarshal(raw, &e); err != nil {
		telemetry.CacheMissesTotal.WithLabelValues(c.namespace).Inc()
		return Entry[T]{}, false
	}
	telemetry.CacheHitsTotal.WithLabelValues(c.namespace).Inc()
	return e, true
}

// Set caches value as present for id using the client's default ttl.
func (c *Client[T]) Set(ctx context.Context, id string, value T) error {
	return c.SetWithTTL(ctx, id, value, c.ttl)
}

// SetWithTTL caches value as present for id with an explicit ttl.
func (c *Client[T]) SetWithTTL(ctx context.Context, id string, value T, ttl time.Duration) error {
	return c.setEntry(ctx, id, Found(value), ttl)
}

// SetAbsent caches the negative sentinel for id, so repeated lookups of a
// nonexistent id do not repeatedly hit the source of truth. The caller
// supplies ttl; every caller in this tree passes the same ttl it uses for
// positive entries.
func (c *Client[T]) SetAbsent(ctx context.Context, id string, ttl time.Duration) error {
	var zero Entry[T]
	zero.Present = false
	return c.setEntry(ctx, id, zero, ttl)
}

func (c *Client[T]) setEntry(ctx context.Context, id string, e Entry[T], ttl time.Duration) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.store.SetRaw(ctx, c.key(id), raw, ttl)
}

// Delete evicts id from the cache.
func (c *Client[T]) Delete(ctx context.Context, id string) {
	c.store.Delete(ctx, c.key(id))
}

// DeletePattern evicts every key in this namespace matching suffixGlob (a
// glob applied after the namespace prefix, e.g. "workspace:42:*").
func (c *Client[T]) DeletePattern(ctx context.Context, suffixGlob string) {
	c.store.DeletePattern(ctx, c.namespace+":"+suffixGlob)
}

// Namespace returns the client's key prefix, for composing raw keys (locks,
// stampede tokens) that share a logical namespace with this client.
func (c *Client[T]) Namespace() string { return c.namespace }

// Store exposes the underlying raw Store for components (C2-C4) that need
// primitives Client[T] does not expose, such as Increment or TryLock.
func (c *Client[T]) Store() *Store { return c.store }
