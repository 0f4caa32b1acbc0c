package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/session"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, st *session.MemoryStore, now time.Time, expiresAt time.Time, revokedAt *time.Time) session.Record {
	t.Helper()
	ctx := context.Background()
	rec := session.Record{
		ID:        ulid.Make().String(),
		UserID:    "u1",
		TokenHash: ulid.Make().String(),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	require.NoError(t, st.InTx(ctx, func(tx session.Tx) error { return tx.Create(ctx, rec) }))
	if revokedAt != nil {
		require.NoError(t, st.RevokeByHash(ctx, rec.TokenHash, *revokedAt, session.ReasonLogout))
	}
	return rec
}

func TestRunOnce_RespectsGracePeriod(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	st := session.NewMemoryStore()

	old := seed(t, st, now, now.Add(-31*24*time.Hour), nil)
	recent := seed(t, st, now, now.Add(-29*24*time.Hour), nil)
	live := seed(t, st, now, now.Add(24*time.Hour), nil)
	longRevoked := now.Add(-45 * 24 * time.Hour)
	revoked := seed(t, st, now, now.Add(24*time.Hour), &longRevoked)

	job := &Job{Store: st, Config: DefaultConfig(), Now: func() time.Time { return now }}
	n, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = st.GetByHash(ctx, old.TokenHash)
	assert.ErrorIs(t, err, session.ErrRecordNotFound)
	_, err = st.GetByHash(ctx, revoked.TokenHash)
	assert.ErrorIs(t, err, session.ErrRecordNotFound)

	_, err = st.GetByHash(ctx, recent.TokenHash)
	assert.NoError(t, err)
	_, err = st.GetByHash(ctx, live.TokenHash)
	assert.NoError(t, err)
}

type countingStore struct {
	remaining int
	calls     []int
}

func (c *countingStore) DeleteStale(_ context.Context, _ time.Time, limit int) (int, error) {
	c.calls = append(c.calls, limit)
	n := limit
	if c.remaining < n {
		n = c.remaining
	}
	c.remaining -= n
	return n, nil
}

func TestRunOnce_LoopsUntilShortBatch(t *testing.T) {
	st := &countingStore{remaining: 250}
	job := &Job{Store: st, Config: DefaultConfig()}

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.Equal(t, []int{100, 100, 100}, st.calls)
}

type failingStore struct{}

func (failingStore) DeleteStale(context.Context, time.Time, int) (int, error) {
	return 0, errors.New("db down")
}

func TestRunOnce_PropagatesErrors(t *testing.T) {
	job := &Job{Store: failingStore{}, Config: DefaultConfig()}
	_, err := job.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{Store: &countingStore{}, Config: Config{BatchSize: 10, Interval: 5 * time.Millisecond}}

	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LABA_CLEANUP_GRACE", "72h")
	t.Setenv("LABA_CLEANUP_BATCH", "500")
	t.Setenv("LABA_CLEANUP_ENABLED", "false")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, cfg.GracePeriod)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.False(t, cfg.Enabled)

	t.Setenv("LABA_CLEANUP_BATCH", "0")
	_, err = LoadConfigFromEnv()
	assert.ErrorIs(t, err, ErrConfig)
}
