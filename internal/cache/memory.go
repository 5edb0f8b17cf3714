package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxEntries = 10000

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryBackend is a bounded in-process cache with per-entry expiry. The
// least recently used entry is evicted once the size limit is reached.
type MemoryBackend struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryBackend creates a MemoryBackend holding at most maxEntries keys.
func NewMemoryBackend(maxEntries int) (*MemoryBackend, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	entries, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryBackend{entries: entries, now: time.Now}, nil
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := m.entries.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.entries.Remove(key)
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries.Add(key, e)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.entries.Remove(k)
	}
	return nil
}

func (m *MemoryBackend) DeletePattern(_ context.Context, pattern string) (int, error) {
	g, err := compileWildcard(pattern)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range m.entries.Keys() {
		if g.Match(k) && m.entries.Remove(k) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) Flush(context.Context) error {
	m.entries.Purge()
	return nil
}

func (m *MemoryBackend) Close() error {
	m.entries.Purge()
	return nil
}

// Len returns the number of entries currently held, expired ones included.
func (m *MemoryBackend) Len() int {
	return m.entries.Len()
}

// compileWildcard compiles a pattern in which only '*' is special.
func compileWildcard(pattern string) (glob.Glob, error) {
	segments := splitPattern(pattern)
	for i, s := range segments {
		segments[i] = glob.QuoteMeta(s)
	}
	g, err := glob.Compile(strings.Join(segments, "*"))
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return g, nil
}
