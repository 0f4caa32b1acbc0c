// Package cleanup removes refresh token records past a grace period.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/metrics"
)

// Store is the subset of session.Store the job needs.
type Store interface {
	DeleteStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// Config controls the sweep.
type Config struct {
	Enabled     bool
	GracePeriod time.Duration
	BatchSize   int
	Interval    time.Duration
}

// DefaultConfig sweeps daily, 100 rows per batch, with a 30-day grace period.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		GracePeriod: 30 * 24 * time.Hour,
		BatchSize:   100,
		Interval:    24 * time.Hour,
	}
}

// LoadConfigFromEnv reads LABA_CLEANUP_ENABLED, LABA_CLEANUP_GRACE,
// LABA_CLEANUP_BATCH and LABA_CLEANUP_INTERVAL on top of DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("LABA_CLEANUP_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.Enabled = b
	}
	if v := os.Getenv("LABA_CLEANUP_GRACE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.GracePeriod = d
	}
	if v := os.Getenv("LABA_CLEANUP_BATCH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 10_000 {
			return Config{}, ErrConfig
		}
		cfg.BatchSize = n
	}
	if v := os.Getenv("LABA_CLEANUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.Interval = d
	}
	return cfg, nil
}

// Job deletes records whose expires_at or revoked_at is older than now - GracePeriod.
type Job struct {
	Store   Store
	Config  Config
	Log     *slog.Logger
	Metrics *metrics.Auth
	Now     func() time.Time
}

// RunOnce deletes in batches until a batch comes back short, and returns the total.
func (j *Job) RunOnce(ctx context.Context) (int, error) {
	batch := j.Config.BatchSize
	if batch <= 0 {
		batch = DefaultConfig().BatchSize
	}
	cutoff := j.now().Add(-j.Config.GracePeriod)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := j.Store.DeleteStale(ctx, cutoff, batch)
		total += n
		j.Metrics.CleanupDeleted(n)
		if err != nil {
			return total, err
		}
		if n < batch {
			return total, nil
		}
	}
}

// Run calls RunOnce immediately and then every Interval until ctx is done.
// Errors are logged; the next tick retries.
func (j *Job) Run(ctx context.Context) {
	interval := j.Config.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}

	j.tick(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			j.tick(ctx)
		}
	}
}

func (j *Job) tick(ctx context.Context) {
	start := time.Now()
	n, err := j.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			j.log().Error("cleanup.run.fail", "deleted", n, "err", err)
		}
		return
	}
	j.log().Info("cleanup.run.ok", "deleted", n, "duration_ms", time.Since(start).Milliseconds())
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now().UTC()
}

func (j *Job) log() *slog.Logger {
	if j.Log != nil {
		return j.Log
	}
	return slog.Default()
}
