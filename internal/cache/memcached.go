package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "dataviz:"

// NewMemcachedClient creates a memcache client. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcachedClient(addrs string, timeout time.Duration, maxIdleConns int) *memcache.Client {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return client
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// MemcachedCache implements Cache on memcached. Values are stored as JSON.
// Entries live under a per-namespace generation number; Invalidate bumps the
// generation so every older key becomes unreachable and ages out on its own.
type MemcachedCache[V any] struct {
	client    *memcache.Client
	namespace string
}

// NewMemcachedCache returns a cache that stores entries for namespace on client.
func NewMemcachedCache[V any](client *memcache.Client, namespace string) *MemcachedCache[V] {
	return &MemcachedCache[V]{client: client, namespace: namespace}
}

func (c *MemcachedCache[V]) genKey() string {
	return keyPrefix + c.namespace + ":gen"
}

func (c *MemcachedCache[V]) generation() (string, error) {
	item, err := c.client.Get(c.genKey())
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return "0", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(item.Value)), nil
}

// key hashes k so file paths and URLs fit memcached's key rules.
func (c *MemcachedCache[V]) key(gen, k string) string {
	sum := sha256.Sum256([]byte(k))
	return keyPrefix + c.namespace + ":" + gen + ":" + hex.EncodeToString(sum[:])
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if ctx.Err() != nil {
		return zero, false, ctx.Err()
	}
	gen, err := c.generation()
	if err != nil {
		return zero, false, err
	}
	item, err := c.client.Get(c.key(gen, key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return zero, false, nil
		}
		return zero, false, err
	}
	var data V
	if err := json.Unmarshal(item.Value, &data); err != nil {
		return zero, false, err
	}
	return data, true, nil
}

// Set implements Cache.Set. Sub-second TTLs round up to one second.
func (c *MemcachedCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	gen, err := c.generation()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(gen, key),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	})
}

// Invalidate implements Cache.Invalidate by advancing the namespace generation.
func (c *MemcachedCache[V]) Invalidate(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	_, err := c.client.Increment(c.genKey(), 1)
	if err == nil {
		return nil
	}
	if !errors.Is(err, memcache.ErrCacheMiss) {
		return err
	}
	err = c.client.Add(&memcache.Item{Key: c.genKey(), Value: []byte(strconv.Itoa(1))})
	if errors.Is(err, memcache.ErrNotStored) {
		// another process created the counter first
		_, err = c.client.Increment(c.genKey(), 1)
	}
	return err
}

func expirationSeconds(ttl time.Duration) int32 {
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs <= 0 {
		return 1
	}
	if secs > maxRelativeExp {
		return maxRelativeExp
	}
	return int32(secs)
}
