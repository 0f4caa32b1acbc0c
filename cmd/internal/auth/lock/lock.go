// Package lock provides advisory per-user locks around refresh rotation.
//
// The locks reduce contention between concurrent refreshes for one user.
// They carry no safety guarantee: rotation correctness comes from the row lock
// taken inside the rotation transaction. Backends that fail report the lock as
// acquired.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker is a best-effort per-user mutex with TTL.
type Locker interface {
	// Acquire reports whether the caller now holds the lock for userID.
	Acquire(ctx context.Context, userID string, ttl time.Duration) bool
	// Release drops a lock held by this process. Releasing an unheld lock is a no-op.
	Release(ctx context.Context, userID string)
}

// NoopLocker always grants the lock.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string, time.Duration) bool { return true }
func (NoopLocker) Release(context.Context, string)                     {}

// MemoryLocker is a process-local Locker for single-node deployments.
type MemoryLocker struct {
	now func() time.Time

	mu    sync.Mutex
	until map[string]time.Time
}

// NewMemoryLocker returns an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		now:   time.Now,
		until: make(map[string]time.Time),
	}
}

// Acquire implements Locker. An expired lock is taken over.
func (m *MemoryLocker) Acquire(_ context.Context, userID string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.until[userID]; ok && now.Before(exp) {
		return false
	}
	m.until[userID] = now.Add(ttl)

	// Opportunistic cleanup keeps the map from growing with idle users.
	if len(m.until) > 1024 {
		for k, exp := range m.until {
			if !now.Before(exp) {
				delete(m.until, k)
			}
		}
	}
	return true
}

// Release implements Locker.
func (m *MemoryLocker) Release(_ context.Context, userID string) {
	m.mu.Lock()
	delete(m.until, userID)
	m.mu.Unlock()
}
