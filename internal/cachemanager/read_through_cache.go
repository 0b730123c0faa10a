package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache loads missing entries with fn and caches them for ttl.
// Errors are never cached.
type ReadThroughCache[K comparable, V any] struct {
	cache CacheManager[K, V]
	fn    func(ctx context.Context, key K) (V, error)
	ttl   time.Duration
}

// NewReadThroughCache wraps cache with the loader fn.
func NewReadThroughCache[K comparable, V any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, key K) (V, error),
	ttl time.Duration,
) *ReadThroughCache[K, V] {
	return &ReadThroughCache[K, V]{cache: cache, fn: fn, ttl: ttl}
}

// Get returns the cached value for key, loading it on a miss.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx, key)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, r.ttl)
	return value, nil
}

// Prime stores a value that is already known, skipping the loader.
func (r *ReadThroughCache[K, V]) Prime(ctx context.Context, key K, value V) {
	r.cache.Set(ctx, key, value, r.ttl)
}

// Invalidate drops every cached entry.
func (r *ReadThroughCache[K, V]) Invalidate(ctx context.Context) {
	r.cache.Flush(ctx)
}
