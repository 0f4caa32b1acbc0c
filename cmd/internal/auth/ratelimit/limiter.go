// Package ratelimit implements named fixed-window admission budgets.
//
// Counting is delegated to a Backend (bounded in-memory map or Redis). The
// Limiter fails open: a backend error is logged and the request is admitted.
// An attacker who can make the backend unavailable therefore disables rate
// limiting.
package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/metrics"
)

// Backend counts hits for key within a fixed window.
// It returns the count after this hit and the absolute window reset time.
type Backend interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)
}

// Limiter applies budgets against backends.
type Limiter struct {
	backend  Backend
	backends map[string]Backend
	log      *slog.Logger
	metrics  *metrics.Auth
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithBudgetBackend routes one budget to a dedicated backend.
func WithBudgetBackend(budget string, b Backend) Option {
	return func(l *Limiter) {
		if b != nil {
			l.backends[budget] = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) {
		if log != nil {
			l.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Auth) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New constructs a Limiter whose default backend is backend.
func New(backend Backend, opts ...Option) *Limiter {
	l := &Limiter{
		backend:  backend,
		backends: make(map[string]Backend),
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Allow records one hit for key under b.
// It returns *Error when the budget is exhausted and nil otherwise,
// including when the backend fails.
func (l *Limiter) Allow(ctx context.Context, b Budget, key string) error {
	if l == nil || b.Max <= 0 || b.Window <= 0 {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}

	backend := l.backend
	if dedicated, ok := l.backends[b.Name]; ok {
		backend = dedicated
	}
	if backend == nil {
		return nil
	}

	now := l.now()
	count, resetAt, err := backend.Hit(ctx, b.Name+":"+key, b.Window, now)
	if err != nil {
		l.log.Warn("ratelimit.backend.fail_open", "budget", b.Name, "err", err)
		l.metrics.FailOpen("ratelimit")
		return nil
	}

	if count > b.Max {
		l.metrics.RateLimited(b.Name)
		return &Error{Budget: b.Name, RetryAfter: resetAt.Sub(now)}
	}
	return nil
}
