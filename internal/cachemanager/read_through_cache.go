package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache loads missing values with fn and caches them.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache           CacheManager[K, V]
	fn              func(ctx context.Context, input I) (V, error)
	shouldSkipCache bool
}

// NewReadThroughCache wraps cache with loader fn. With shouldSkipCache set
// every Get calls fn.
func NewReadThroughCache[K comparable, V any, I any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, input I) (V, error),
	shouldSkipCache bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{
		cache:           cache,
		fn:              fn,
		shouldSkipCache: shouldSkipCache,
	}
}

// Get returns the cached value for key or loads it from input.
// Load errors are returned and nothing is cached.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx, input)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, ttl)
	return value, nil
}

// GetWithRefresh is Get, extending the TTL on a hit.
func (r *ReadThroughCache[K, V, I]) GetWithRefresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.GetWithRefresh(ctx, key, ttl); ok {
		return value, nil
	}

	value, err := r.fn(ctx, input)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, ttl)
	return value, nil
}

// Refresh always loads input with fn and caches the result. When the load
// fails the cached value, if any, is returned instead.
func (r *ReadThroughCache[K, V, I]) Refresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	value, err := r.fn(ctx, input)
	if err == nil {
		if !r.shouldSkipCache {
			r.cache.Set(ctx, key, value, ttl)
		}
		return value, nil
	}
	if !r.shouldSkipCache {
		if cached, ok := r.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}
	return value, err
}

// Put stores a value obtained outside the loader.
func (r *ReadThroughCache[K, V, I]) Put(ctx context.Context, key K, value V, ttl time.Duration) {
	r.cache.Set(ctx, key, value, ttl)
}

// Invalidate drops key so the next Get reloads it.
func (r *ReadThroughCache[K, V, I]) Invalidate(ctx context.Context, key K) {
	_ = r.cache.Delete(ctx, key)
}
