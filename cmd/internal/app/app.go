// Package app wires the Laba server runtime: config, logging, storage, the auth engine and HTTP routes.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/identity"
	api "github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/api"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/cleanup"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/device"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/lock"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/ratelimit"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/session"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/metrics"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const rateLimitSweepInterval = time.Minute

// App is the Laba server runtime. It owns the HTTP server and every background worker.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	redis  *redis.Client

	registry    *prometheus.Registry
	httpMetrics *metrics.HTTP

	sessions *session.Service
	auth     *api.Handler

	// Background workers started by Run.
	sweepers []*ratelimit.MemoryBackend
	cleanup  *cleanup.Job
}

// New constructs a fully wired App instance from config and logger.
// Without LABA_DATABASE_URL the user and token stores live in memory; without
// LABA_REDIS_URL the rate limiter and refresh lock do too.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}

	var authMetrics *metrics.Auth
	if cfg.MetricsEnabled {
		a.registry = metrics.NewRegistry()
		authMetrics = metrics.New(a.registry)
		a.httpMetrics = metrics.NewHTTP(a.registry)
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	budgets, err := ratelimit.LoadBudgetsFromEnv()
	if err != nil {
		return nil, err
	}
	cleanupCfg, err := cleanup.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewHasher(pwCfg)
	if err != nil {
		return nil, err
	}

	users, store, err := a.newStores(ctx, hasher)
	if err != nil {
		return nil, err
	}

	limiter, locker, err := a.newCoordination(ctx, budgets, authMetrics)
	if err != nil {
		a.close()
		return nil, err
	}

	tokens, err := session.NewAccessTokenManager(sessCfg)
	if err != nil {
		a.close()
		return nil, err
	}

	var notifier session.Notifier = session.NoopNotifier{}
	if sessCfg.AlertWebhookURL != "" {
		notifier = session.NewWebhookNotifier(sessCfg.AlertWebhookURL, sessCfg.AlertWebhookTimeout)
	}

	a.sessions = session.NewService(sessCfg, store, users, tokens,
		session.WithLimiter(limiter, budgets),
		session.WithLocker(locker),
		session.WithFingerprinter(device.SubnetFingerprinter{}),
		session.WithNotifier(notifier),
		session.WithLogger(log),
		session.WithMetrics(authMetrics),
	)
	a.auth = api.NewHandler(log, a.sessions, api.LoadConfigFromEnv())

	if cleanupCfg.Enabled {
		a.cleanup = &cleanup.Job{Store: store, Config: cleanupCfg, Log: log, Metrics: authMetrics}
	}

	return a, nil
}

// newStores picks Postgres-backed stores when a database is configured and in-memory ones otherwise.
func (a *App) newStores(ctx context.Context, hasher *password.Hasher) (session.UserStore, session.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(hasher), session.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}
	a.dbPool = pool
	a.log.Info("db.enabled.postgres_store", "migrated", a.cfg.DBMigrate)

	users, err := identity.NewPostgresStore(pool, hasher)
	if err != nil {
		pool.Close()
		a.dbPool = nil
		return nil, nil, err
	}
	return users, session.NewPostgresStore(pool), nil
}

// newCoordination builds the rate limiter and the refresh lock. Refresh budgets get a
// dedicated backend so refresh floods cannot evict login counters.
func (a *App) newCoordination(ctx context.Context, budgets ratelimit.Budgets, m *metrics.Auth) (*ratelimit.Limiter, lock.Locker, error) {
	opts := []ratelimit.Option{ratelimit.WithLogger(a.log), ratelimit.WithMetrics(m)}

	if a.cfg.RedisURL == "" {
		a.log.Info("redis.disabled.inmemory_coordination")
		shared := ratelimit.NewMemoryBackend(budgets.MaxKeys)
		refresh := ratelimit.NewMemoryBackend(budgets.RefreshMaxKeys)
		a.sweepers = append(a.sweepers, shared, refresh)

		opts = append(opts, ratelimit.WithBudgetBackend(ratelimit.RefreshIP, refresh))
		return ratelimit.New(shared, opts...), lock.NewMemoryLocker(), nil
	}

	client, err := NewRedisClient(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	a.redis = client
	a.log.Info("redis.enabled")

	shared := ratelimit.NewRedisBackend(client, "")
	refresh := ratelimit.NewRedisBackend(client, "laba:rl:refresh:")
	opts = append(opts, ratelimit.WithBudgetBackend(ratelimit.RefreshIP, refresh))
	return ratelimit.New(shared, opts...), lock.NewRedisLocker(client, a.log, m), nil
}

// Run starts the HTTP server and workers, and blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, httpDeps{
		dbPool:   a.dbPool,
		redis:    a.redis,
		auth:     a.auth,
		registry: a.registry,
	})

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(WithSecurityHeaders(mux), a.log, a.httpMetrics),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	var workers sync.WaitGroup
	for _, b := range a.sweepers {
		workers.Add(1)
		go func() {
			defer workers.Done()
			b.Run(workerCtx, rateLimitSweepInterval)
		}()
	}
	if a.cleanup != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			a.cleanup.Run(workerCtx)
		}()
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbPool != nil, "redis_enabled", a.redis != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	stopWorkers()
	workers.Wait()
	// In-flight compromise alerts are detached from requests; let them finish.
	a.sessions.Wait()
	a.close()

	a.log.Info("server.stopped")
	return runErr
}

func (a *App) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
