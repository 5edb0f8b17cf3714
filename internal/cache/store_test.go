package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantly/tenantly/internal/config"
	"github.com/tenantly/tenantly/internal/telemetry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newConnectedStore(t *testing.T) *Store {
	t.Helper()
	backend, err := NewMemoryBackend(100)
	require.NoError(t, err)
	s := New(backend, Options{Logger: quietLogger()})
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Disconnect() })
	return s
}

// failingBackend returns an error from every operation.
type failingBackend struct{ err error }

func (f failingBackend) Name() string { return "failing" }
func (f failingBackend) Ping(context.Context) error { return nil }
func (f failingBackend) Flush(context.Context) error { return f.err }
func (f failingBackend) Close() error { return nil }
func (f failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, f.err
}
func (f failingBackend) Set(context.Context, string, []byte, time.Duration) error {
	return f.err
}
func (f failingBackend) Delete(context.Context, ...string) error { return f.err }
func (f failingBackend) DeletePattern(context.Context, string) (int, error) {
	return 0, f.err
}

type profile struct {
	ID    string   `json:"id"`
	Perms []string `json:"perms"`
}

func countingProducer(calls *atomic.Int32, v profile) func(context.Context) (profile, error) {
	return func(context.Context) (profile, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestGetOrCompute_CachesOnMiss(t *testing.T) {
	s := newConnectedStore(t)
	ctx := context.Background()
	var calls atomic.Int32
	want := profile{ID: "u1", Perms: []string{"read:profile"}}

	got, err := GetOrCompute(ctx, s, "user:u1", time.Minute, countingProducer(&calls, want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.EqualValues(t, 1, calls.Load())

	got, err = GetOrCompute(ctx, s, "user:u1", time.Minute, countingProducer(&calls, profile{ID: "other"}))
	require.NoError(t, err)
	assert.Equal(t, want, got, "second call must return the stored value")
	assert.EqualValues(t, 1, calls.Load(), "producer must not run on a hit")
}

func TestGetOrCompute_RecomputesAfterInvalidation(t *testing.T) {
	s := newConnectedStore(t)
	ctx := context.Background()
	var calls atomic.Int32
	p := countingProducer(&calls, profile{ID: "r1"})

	_, _ = GetOrCompute(ctx, s, "role:r1", 0, p)
	s.Delete(ctx, "role:r1")
	_, _ = GetOrCompute(ctx, s, "role:r1", 0, p)
	assert.EqualValues(t, 2, calls.Load())

	_, _ = GetOrCompute(ctx, s, "roles:list:all", 0, p)
	s.Invalidate(ctx, []string{"role:r1"}, "roles:*")
	_, _ = GetOrCompute(ctx, s, "roles:list:all", 0, p)
	_, _ = GetOrCompute(ctx, s, "role:r1", 0, p)
	assert.EqualValues(t, 5, calls.Load())
}

func TestGetOrCompute_ProducerErrorNotCached(t *testing.T) {
	s := newConnectedStore(t)
	ctx := context.Background()
	boom := errors.New("db down")

	_, err := GetOrCompute(ctx, s, "user:x", 0, func(context.Context) (profile, error) {
		return profile{}, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok := s.Get(ctx, "user:x")
	assert.False(t, ok)
}

func TestGetOrCompute_NotReadyAlwaysComputes(t *testing.T) {
	backend, err := NewMemoryBackend(10)
	require.NoError(t, err)
	s := New(backend, Options{Logger: quietLogger()}) // never connected
	ctx := context.Background()
	var calls atomic.Int32

	for i := 0; i < 3; i++ {
		_, err := GetOrCompute(ctx, s, "k", 0, countingProducer(&calls, profile{ID: "1"}))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 0, backend.Len(), "writes must be no-ops while not ready")

	var nilStore *Store
	_, err = GetOrCompute(ctx, nilStore, "k", 0, countingProducer(&calls, profile{ID: "1"}))
	require.NoError(t, err)
	assert.EqualValues(t, 4, calls.Load())
}

func TestStore_BackendErrorsAreSwallowed(t *testing.T) {
	metrics := telemetry.New()
	s := New(failingBackend{err: errors.New("connection reset")}, Options{Logger: quietLogger(), Metrics: metrics})
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	var calls atomic.Int32

	got, err := GetOrCompute(ctx, s, "k", 0, countingProducer(&calls, profile{ID: "live"}))
	require.NoError(t, err)
	assert.Equal(t, "live", got.ID)

	s.Delete(ctx, "k")
	assert.Equal(t, 0, s.DeletePattern(ctx, "k*"))
	s.Clear(ctx)

	assert.EqualValues(t, 1, testutil.ToFloat64(metrics.CacheOperations.WithLabelValues("get", telemetry.CacheError)))
	assert.EqualValues(t, 1, testutil.ToFloat64(metrics.CacheOperations.WithLabelValues("set", telemetry.CacheError)))
}

func TestStore_UndecodableEntryIsMiss(t *testing.T) {
	s := newConnectedStore(t)
	ctx := context.Background()

	s.Set(ctx, "user:bad", []byte("not json"), 0)
	var p profile
	assert.False(t, s.GetJSON(ctx, "user:bad", &p))
	_, ok := s.Get(ctx, "user:bad")
	assert.False(t, ok, "undecodable entry should be dropped")
}

func TestStore_ConnectFailureLeavesDisconnected(t *testing.T) {
	mr := miniredis.RunT(t)
	backend, err := NewRedisBackend("redis://" + mr.Addr())
	require.NoError(t, err)
	mr.Close()

	s := New(backend, Options{Logger: quietLogger()})
	assert.Error(t, s.Connect(context.Background()))
	assert.False(t, s.IsReady())

	// Reads miss and writes are no-ops rather than errors.
	s.Set(context.Background(), "k", []byte("v"), 0)
	_, ok := s.Get(context.Background(), "k")
	assert.False(t, ok)
}

// switchableBackend is a memory backend whose Ping can be made to fail.
type switchableBackend struct {
	*MemoryBackend
	down atomic.Bool
}

func (b *switchableBackend) Ping(ctx context.Context) error {
	if b.down.Load() {
		return errors.New("connection refused")
	}
	return b.MemoryBackend.Ping(ctx)
}

func TestStore_WatchRecoversAfterFailedConnect(t *testing.T) {
	mem, err := NewMemoryBackend(10)
	require.NoError(t, err)
	backend := &switchableBackend{MemoryBackend: mem}
	backend.down.Store(true)

	s := New(backend, Options{Logger: quietLogger()})
	require.Error(t, s.Connect(context.Background()))
	require.False(t, s.IsReady())

	s.Watch(5 * time.Millisecond)
	backend.down.Store(false)
	require.Eventually(t, s.IsReady, 2*time.Second, 5*time.Millisecond, "store should reconnect")

	backend.down.Store(true)
	require.Eventually(t, func() bool { return !s.IsReady() }, 2*time.Second, 5*time.Millisecond,
		"store should notice the backend going away")

	backend.down.Store(false)
	require.Eventually(t, s.IsReady, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Disconnect())
	assert.False(t, s.IsReady())

	// Nil stores and repeated calls are harmless.
	var nilStore *Store
	nilStore.Watch(time.Millisecond)
	s.Watch(0)
}

func TestStore_RedisRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	backend, err := NewRedisBackend("redis://" + mr.Addr())
	require.NoError(t, err)
	s := New(backend, Options{Logger: quietLogger(), DefaultTTL: time.Minute})
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	defer s.Disconnect()

	s.SetJSON(ctx, "dashboard:stats", profile{ID: "stats"}, 0)
	assert.Equal(t, time.Minute, mr.TTL("dashboard:stats"))

	s.SetJSON(ctx, "dashboard:recent-users", profile{ID: "recent"}, 0)
	assert.Equal(t, 2, s.DeletePattern(ctx, "dashboard:*"))

	s.SetJSON(ctx, "user:1", profile{ID: "1"}, 0)
	s.Clear(ctx)
	assert.Empty(t, mr.Keys())
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(configFor("memory", ""))
	require.NoError(t, err)
	assert.Equal(t, "memory", b.Name())

	_, err = NewBackend(configFor("redis", ""))
	assert.Error(t, err)

	_, err = NewBackend(configFor("memcached", ""))
	assert.Error(t, err)
}

func configFor(driver, url string) config.CacheConfig {
	return config.CacheConfig{Driver: driver, URL: url}
}
