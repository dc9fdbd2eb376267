// Package cachemanager provides typed in-memory caches.
package cachemanager

import (
	"context"
	"time"
)

// NoExpiration keeps an entry until it is deleted or the cache is flushed.
const NoExpiration time.Duration = -1

type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Update(ctx context.Context, key K, fn func(current V, found bool) V)
	Items(ctx context.Context) map[K]V
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
	Len() int
}
