package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type failingBackend struct{}

func (failingBackend) Hit(context.Context, string, time.Duration, time.Time) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}

func TestLimiter_LoginUserBudget(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := New(NewMemoryBackend(100), WithClock(clock.Now))
	budget := Budget{Name: LoginUser, Max: 5, Window: 15 * time.Minute}
	email := gofakeit.Email()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow(ctx, budget, email), "attempt %d", i+1)
	}

	err := l.Allow(ctx, budget, email)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	rl, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, LoginUser, rl.Budget)
	assert.Equal(t, 15*time.Minute, rl.RetryAfter)
	assert.Equal(t, 900, rl.RetryAfterSeconds())

	clock.t = clock.t.Add(15 * time.Minute)
	assert.NoError(t, l.Allow(ctx, budget, email), "allowed again once the window elapses")
}

func TestLimiter_BudgetsAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryBackend(100))
	a := Budget{Name: LoginIP, Max: 1, Window: time.Minute}
	b := Budget{Name: RegisterIP, Max: 1, Window: time.Minute}

	require.NoError(t, l.Allow(ctx, a, "10.0.0.1"))
	require.NoError(t, l.Allow(ctx, b, "10.0.0.1"))
	assert.Error(t, l.Allow(ctx, a, "10.0.0.1"))
	assert.NoError(t, l.Allow(ctx, a, "10.0.0.2"))
}

func TestLimiter_DedicatedBackend(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryBackend(100)
	refresh := NewMemoryBackend(100)
	l := New(shared, WithBudgetBackend(RefreshIP, refresh))

	require.NoError(t, l.Allow(ctx, Budget{Name: RefreshIP, Max: 60, Window: time.Minute}, "10.0.0.1"))
	assert.Equal(t, 0, shared.Len())
	assert.Equal(t, 1, refresh.Len())
}

func TestLimiter_FailsOpen(t *testing.T) {
	l := New(failingBackend{})
	budget := Budget{Name: LoginIP, Max: 1, Window: time.Minute}
	for i := 0; i < 10; i++ {
		assert.NoError(t, l.Allow(context.Background(), budget, "10.0.0.1"))
	}
}

func TestLimiter_DisabledBudgetAndEmptyKey(t *testing.T) {
	l := New(NewMemoryBackend(10))
	assert.NoError(t, l.Allow(context.Background(), Budget{Name: LoginIP, Max: 0, Window: time.Minute}, "k"))
	assert.NoError(t, l.Allow(context.Background(), Budget{Name: LoginIP, Max: 1, Window: time.Minute}, "  "))

	var nilLimiter *Limiter
	assert.NoError(t, nilLimiter.Allow(context.Background(), Budget{Name: LoginIP, Max: 1, Window: time.Minute}, "k"))
}

func TestError_RetryAfterSecondsRoundsUp(t *testing.T) {
	assert.Equal(t, 2, (&Error{RetryAfter: 1500 * time.Millisecond}).RetryAfterSeconds())
	assert.Equal(t, 1, (&Error{RetryAfter: 0}).RetryAfterSeconds())
}
