package cache

import (
	"context"
	"time"
)

// GetOrCompute returns the cached value for key, or calls produce, caches its
// result for ttl (zero means the store default) and returns it. A produce
// error is returned unchanged and nothing is cached.
//
// Concurrent callers for the same key are not coalesced; each may run
// produce.
func GetOrCompute[T any](ctx context.Context, s *Store, key string, ttl time.Duration, produce func(context.Context) (T, error)) (T, error) {
	var cached T
	if s.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	v, err := produce(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.SetJSON(ctx, key, v, ttl)
	return v, nil
}
