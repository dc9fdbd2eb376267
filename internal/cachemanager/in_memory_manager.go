package cachemanager

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/agentbridge/internal/log"
)

// DefaultCleanupInterval is how often expired entries are purged. Caches
// that only use NoExpiration never have anything to purge.
const DefaultCleanupInterval = 30 * time.Minute

// NewInMemoryCacheManager initializes an in-memory cache. A defaultExpiration
// of NoExpiration keeps entries for the lifetime of the process.
func NewInMemoryCacheManager[K ~string, V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// InMemoryCacheManager is the go-cache backed implementation of CacheManager.
type InMemoryCacheManager[K ~string, V any] struct {
	useCase  string
	cache    *gocache.Cache
	updateMu sync.Mutex
}

// Get retrieves an item from the cache by its key
func (c *InMemoryCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zeroValue V

	value, found := c.cache.Get(string(key))
	if !found {
		return zeroValue, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value", "cache", c.useCase, "key", key)
		return zeroValue, false
	}

	return v, true
}

// Set stores value under key. A ttl of 0 uses the cache default.
func (c *InMemoryCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	c.cache.Set(string(key), value, ttl)
}

// Update applies fn to the current value (if any) and stores the result
// with the default expiration. Concurrent Updates are serialized.
func (c *InMemoryCacheManager[K, V]) Update(ctx context.Context, key K, fn func(current V, found bool) V) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	current, found := c.Get(ctx, key)
	c.cache.Set(string(key), fn(current, found), gocache.DefaultExpiration)
}

// Items returns a snapshot copy of every unexpired entry.
func (c *InMemoryCacheManager[K, V]) Items(ctx context.Context) map[K]V {
	raw := c.cache.Items()
	out := make(map[K]V, len(raw))
	for k, item := range raw {
		v, ok := item.Object.(V)
		if !ok {
			log.Error(log.CatCache, "wrong type assertion when listing values", "cache", c.useCase, "key", k)
			continue
		}
		out[K(k)] = v
	}
	return out
}

// Delete removes values by key
func (c *InMemoryCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	for _, key := range keys {
		c.cache.Delete(string(key))
	}
	return nil
}

// Flush removes every value
func (c *InMemoryCacheManager[K, V]) Flush(ctx context.Context) error {
	c.cache.Flush()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *InMemoryCacheManager[K, V]) Len() int {
	return c.cache.ItemCount()
}

var _ CacheManager[string, int] = (*InMemoryCacheManager[string, int])(nil)
