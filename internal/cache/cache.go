// Package cache keeps computed summaries in memory for a bounded time.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// Size returns the current number of items in the cache
	Size() int
}

// TTLCache is a typed cache whose entries expire after a fixed TTL.
// Concurrent loads of the same key are collapsed into one call.
// Loads that started before an invalidation are returned to their callers
// but never stored.
type TTLCache[T any] struct {
	store *gocache.Cache
	group singleflight.Group

	mu  sync.Mutex
	gen uint64 // bumped by every invalidation
}

// NewTTLCache creates a cache with the given TTL. Expired entries are
// purged every cleanupInterval.
func NewTTLCache[T any](ttl, cleanupInterval time.Duration) *TTLCache[T] {
	return &TTLCache[T]{store: gocache.New(ttl, cleanupInterval)}
}

func (c *TTLCache[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := c.store.Get(key)
	if !ok {
		return zero, false
	}
	data, ok := v.(T)
	if !ok {
		return zero, false
	}
	return data, true
}

func (c *TTLCache[T]) Set(key string, data T) {
	c.store.Set(key, data, gocache.DefaultExpiration)
}

func (c *TTLCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.store.Delete(key)
}

// DeletePrefix removes every key starting with prefix and returns how many
// were dropped.
func (c *TTLCache[T]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	n := 0
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
			n++
		}
	}
	return n
}

func (c *TTLCache[T]) Size() int {
	return c.store.ItemCount()
}

// Flush drops every entry.
func (c *TTLCache[T]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.store.Flush()
}

func (c *TTLCache[T]) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// setIfCurrent stores data unless the cache was invalidated after gen.
func (c *TTLCache[T]) setIfCurrent(gen uint64, key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.store.Set(key, data, gocache.DefaultExpiration)
	}
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Errors are not cached.
func (c *TTLCache[T]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	// Callers arriving after an invalidation start a new flight instead of
	// joining one that may have read old data.
	gen := c.generation()
	v, err, _ := c.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		data, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.setIfCurrent(gen, key, data)
		return data, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	data, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: unexpected type %T for key %q", v, key)
	}
	return data, nil
}

// Key joins parts with ':'.
func Key(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, ":")
}
