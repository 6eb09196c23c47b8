package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cache is a keyed store of values with per-entry expiry.
// Get returns cached data if present and not expired, Set stores data with TTL,
// Invalidate drops every entry at once.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// InMemoryCache implements Cache using a map of (value, expiry) entries.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache[V any] struct {
	mu    sync.Mutex
	clock clockwork.Clock
	data  map[string]cacheEntry[V]
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache on the real clock.
func NewInMemoryCache[V any]() *InMemoryCache[V] {
	return NewInMemoryCacheWithClock[V](clockwork.NewRealClock())
}

// NewInMemoryCacheWithClock creates an in-memory cache that reads time from clock.
func NewInMemoryCacheWithClock[V any](clock clockwork.Clock) *InMemoryCache[V] {
	return &InMemoryCache[V]{
		clock: clock,
		data:  make(map[string]cacheEntry[V]),
	}
}

// Get returns (value, true, nil) on hit and (zero, false, nil) on miss or expiry.
func (c *InMemoryCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.data[key]
	if !ok {
		return zero, false, nil
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.data, key)
		return zero, false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key until ttl elapses.
func (c *InMemoryCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry[V]{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
	}
	return nil
}

// Invalidate removes all entries regardless of expiry.
func (c *InMemoryCache[V]) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]cacheEntry[V])
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
