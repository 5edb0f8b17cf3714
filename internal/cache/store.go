package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tenantly/tenantly/internal/telemetry"
)

const (
	defaultTTL      = time.Hour
	pingTimeout     = 2 * time.Second
	maxWatchBackoff = 2 * time.Minute
)

// Options configures a Store.
type Options struct {
	DefaultTTL time.Duration
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
}

// Store is the cache adapter handed to services and middleware. It never
// returns backend errors: while disconnected reads miss and writes are
// no-ops, and any I/O failure is logged and treated the same way.
//
// A nil *Store behaves like a disconnected one.
type Store struct {
	backend    Backend
	defaultTTL time.Duration
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	ready      atomic.Bool

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

// New wraps backend. The store starts disconnected; call Connect.
func New(backend Backend, opts Options) *Store {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = defaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		backend:    backend,
		defaultTTL: opts.DefaultTTL,
		logger:     opts.Logger.With("component", "cache", "backend", backend.Name()),
		metrics:    opts.Metrics,
	}
}

// Connect verifies the backend is reachable and marks the store ready. On
// failure the store stays disconnected and the error is returned for the
// caller to log; it is never fatal.
func (s *Store) Connect(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		s.ready.Store(false)
		return err
	}
	s.ready.Store(true)
	s.logger.Info("cache connected")
	return nil
}

// Watch pings the backend every interval until Disconnect. A failed ping
// marks the store not ready and the next successful one restores it. While
// the backend is down the retry delay doubles up to two minutes.
func (s *Store) Watch(interval time.Duration) {
	if s == nil || interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})
	go s.watch(ctx, interval, s.done)
}

func (s *Store) watch(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)

	wait := interval
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := s.backend.Ping(pctx)
		cancel()
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			if !s.ready.Swap(true) {
				s.logger.Info("cache reconnected")
			}
			wait = interval
		} else {
			if s.ready.Swap(false) {
				s.logger.Warn("cache unreachable, serving live", "error", err)
			}
			wait = min(wait*2, maxWatchBackoff)
		}
		timer.Reset(wait)
	}
}

// Disconnect stops the health check, marks the store not ready and closes
// the backend.
func (s *Store) Disconnect() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
	s.ready.Store(false)
	return s.backend.Close()
}

// IsReady reports whether the store is connected.
func (s *Store) IsReady() bool {
	return s != nil && s.ready.Load()
}

// BackendName returns the backend identifier ("memory", "redis").
func (s *Store) BackendName() string {
	if s == nil {
		return "none"
	}
	return s.backend.Name()
}

// DefaultTTL returns the TTL applied when callers pass zero.
func (s *Store) DefaultTTL() time.Duration {
	if s == nil {
		return defaultTTL
	}
	return s.defaultTTL
}

func (s *Store) fail(op, key string, err error) {
	s.logger.Warn("cache operation failed", "op", op, "key", key, "error", err)
	s.metrics.RecordCache(op, telemetry.CacheError)
}

// Get returns the raw value for key. ok is false on a miss, when the store
// is not ready, or when the backend failed.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if !s.IsReady() {
		if s != nil {
			s.metrics.RecordCache("get", telemetry.CacheSkip)
		}
		return nil, false
	}
	b, err := s.backend.Get(ctx, key)
	switch {
	case err == nil:
		s.metrics.RecordCache("get", telemetry.CacheHit)
		return b, true
	case errors.Is(err, ErrMiss):
		s.metrics.RecordCache("get", telemetry.CacheMiss)
	default:
		s.fail("get", key, err)
	}
	return nil, false
}

// Set stores value under key. A zero ttl uses the default TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !s.IsReady() {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.backend.Set(ctx, key, value, ttl); err != nil {
		s.fail("set", key, err)
		return
	}
	s.metrics.RecordCache("set", telemetry.CacheOK)
}

// GetJSON decodes the value under key into dst. An undecodable entry is
// dropped and reported as a miss.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) bool {
	b, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		s.fail("decode", key, err)
		s.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if !s.IsReady() {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.fail("encode", key, err)
		return
	}
	s.Set(ctx, key, b, ttl)
}

// Delete removes keys.
func (s *Store) Delete(ctx context.Context, keys ...string) {
	if !s.IsReady() || len(keys) == 0 {
		return
	}
	if err := s.backend.Delete(ctx, keys...); err != nil {
		s.fail("delete", keys[0], err)
		return
	}
	s.metrics.RecordCache("delete", telemetry.CacheOK)
}

// DeletePattern removes every key matching pattern ('*' matches zero or more
// characters) and returns how many were removed.
func (s *Store) DeletePattern(ctx context.Context, pattern string) int {
	if !s.IsReady() {
		return 0
	}
	n, err := s.backend.DeletePattern(ctx, pattern)
	if err != nil {
		s.fail("delete_pattern", pattern, err)
		return n
	}
	s.metrics.RecordCache("delete_pattern", telemetry.CacheOK)
	s.logger.Debug("cache pattern invalidated", "pattern", pattern, "deleted", n)
	return n
}

// Invalidate deletes the exact keys first, then each pattern.
func (s *Store) Invalidate(ctx context.Context, keys []string, patterns ...string) {
	s.Delete(ctx, keys...)
	for _, p := range patterns {
		s.DeletePattern(ctx, p)
	}
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) {
	if !s.IsReady() {
		return
	}
	if err := s.backend.Flush(ctx); err != nil {
		s.fail("flush", "*", err)
		return
	}
	s.metrics.RecordCache("flush", telemetry.CacheOK)
	s.logger.Info("cache cleared")
}
