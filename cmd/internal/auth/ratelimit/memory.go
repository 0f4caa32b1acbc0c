package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

type counter struct {
	count   int
	resetAt time.Time
}

// MemoryBackend is a bounded fixed-window counter map.
//
// When a new key arrives at capacity, expired entries are swept first; if the
// map is still full, the oldest 20% by reset time are evicted. New keys are
// never rejected.
type MemoryBackend struct {
	maxKeys int

	mu      sync.Mutex
	entries map[string]*counter
}

// NewMemoryBackend returns a backend tracking at most maxKeys keys.
func NewMemoryBackend(maxKeys int) *MemoryBackend {
	if maxKeys <= 0 {
		maxKeys = DefaultBudgets().MaxKeys
	}
	return &MemoryBackend{
		maxKeys: maxKeys,
		entries: make(map[string]*counter),
	}
}

// Hit implements Backend.
func (m *MemoryBackend) Hit(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		if now.Before(e.resetAt) {
			e.count++
			return e.count, e.resetAt, nil
		}
		e.count = 1
		e.resetAt = now.Add(window)
		return e.count, e.resetAt, nil
	}

	if len(m.entries) >= m.maxKeys {
		m.sweepLocked(now)
		if len(m.entries) >= m.maxKeys {
			m.evictOldestLocked()
		}
	}

	e := &counter{count: 1, resetAt: now.Add(window)}
	m.entries[key] = e
	return e.count, e.resetAt, nil
}

// Sweep removes expired entries and returns how many were removed.
func (m *MemoryBackend) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(now)
}

// Len returns the number of tracked keys.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Run sweeps every interval until ctx is done.
func (m *MemoryBackend) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			m.Sweep(now)
		}
	}
}

func (m *MemoryBackend) sweepLocked(now time.Time) int {
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.resetAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *MemoryBackend) evictOldestLocked() {
	n := m.maxKeys / 5
	if n < 1 {
		n = 1
	}

	type kv struct {
		key     string
		resetAt time.Time
	}
	all := make([]kv, 0, len(m.entries))
	for k, e := range m.entries {
		all = append(all, kv{key: k, resetAt: e.resetAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].resetAt.Before(all[j].resetAt) })

	if n > len(all) {
		n = len(all)
	}
	for _, e := range all[:n] {
		delete(m.entries, e.key)
	}
}
