package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopLocker(t *testing.T) {
	var l Locker = NoopLocker{}
	assert.True(t, l.Acquire(context.Background(), "u", time.Second))
	assert.True(t, l.Acquire(context.Background(), "u", time.Second))
	l.Release(context.Background(), "u")
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	require.True(t, l.Acquire(ctx, "u1", time.Minute))
	assert.False(t, l.Acquire(ctx, "u1", time.Minute))
	assert.True(t, l.Acquire(ctx, "u2", time.Minute), "locks are per user")

	l.Release(ctx, "u1")
	assert.True(t, l.Acquire(ctx, "u1", time.Minute))
}

func TestMemoryLocker_ExpiredLockIsTakenOver(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLocker()
	l.now = func() time.Time { return now }

	require.True(t, l.Acquire(ctx, "u", 5*time.Second))
	now = now.Add(6 * time.Second)
	assert.True(t, l.Acquire(ctx, "u", 5*time.Second))
}

func TestMemoryLocker_ConcurrentAcquireHasOneWinner(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire(ctx, "u", time.Minute) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisLocker_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, nil, nil)
	assert.True(t, l.Acquire(context.Background(), "u", time.Second))
	l.Release(context.Background(), "u")
}

// Redis tests run when LABA_REDIS_URL is set.
func TestRedisLocker_AcquireRelease(t *testing.T) {
	url := os.Getenv("LABA_REDIS_URL")
	if url == "" {
		t.Skip("LABA_REDIS_URL is not set; skipping Redis integration test")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	a := NewRedisLocker(client, nil, nil)
	b := NewRedisLocker(client, nil, nil)
	userID := ulid.Make().String()

	require.True(t, a.Acquire(ctx, userID, 5*time.Second))
	assert.False(t, b.Acquire(ctx, userID, 5*time.Second))

	// b never held it, so its release must not drop a's lock.
	b.Release(ctx, userID)
	assert.False(t, b.Acquire(ctx, userID, 5*time.Second))

	a.Release(ctx, userID)
	assert.True(t, b.Acquire(ctx, userID, 5*time.Second))
	b.Release(ctx, userID)
}
