package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

// RedisBackend stores entries in Redis. Pattern deletes walk the keyspace
// with SCAN rather than KEYS so a large database is never blocked.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend creates a backend from a redis:// or rediss:// URL. The
// connection is lazy; call Ping to verify it.
func NewRedisBackend(url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisBackend{client: redis.NewClient(opts)}, nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// DeletePattern collects every matching key before deleting any of them.
// Deleting while the SCAN cursor is live can make the server skip keys.
func (r *RedisBackend) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, redisMatch(pattern), scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan %q: %w", pattern, err)
	}

	deleted := 0
	for len(keys) > 0 {
		n := min(len(keys), scanBatch)
		removed, err := r.client.Del(ctx, keys[:n]...).Result()
		if err != nil {
			return deleted, fmt.Errorf("delete batch: %w", err)
		}
		deleted += int(removed)
		keys = keys[n:]
	}
	return deleted, nil
}

func (r *RedisBackend) Flush(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

var redisEscaper = strings.NewReplacer(`\`, `\\`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// redisMatch turns a '*'-only pattern into a SCAN MATCH expression with all
// other glob metacharacters escaped.
func redisMatch(pattern string) string {
	segments := splitPattern(pattern)
	for i, s := range segments {
		segments[i] = redisEscaper.Replace(s)
	}
	return strings.Join(segments, "*")
}
