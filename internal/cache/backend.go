// Package cache provides the advisory key/value cache used for cache-aside
// reads and response caching. Backends are either in-process (LRU) or Redis;
// Store wraps a backend with a readiness flag and swallows every backend
// failure so the cache can never fail a request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tenantly/tenantly/internal/config"
)

// ErrMiss is returned by Backend.Get when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Backend is a raw cache implementation. Errors are returned as-is; Store is
// responsible for logging and discarding them.
type Backend interface {
	Name() string
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes every key matching pattern, where '*' matches
	// zero or more characters and every other character is literal.
	DeletePattern(ctx context.Context, pattern string) (int, error)
	Flush(ctx context.Context) error
	Close() error
}

// NewBackend builds the backend selected by cfg.Driver ("memory" or "redis").
func NewBackend(cfg config.CacheConfig) (Backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemoryBackend(cfg.MaxEntries)
	case "redis":
		if cfg.URL == "" {
			return nil, fmt.Errorf("cache.url is required for the redis driver")
		}
		return NewRedisBackend(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}
}

// splitPattern breaks a pattern on its wildcards. The returned segments are
// literal text.
func splitPattern(pattern string) []string {
	return strings.Split(pattern, "*")
}
