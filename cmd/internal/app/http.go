package app

import (
	"net/http"
	"time"

	api "github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/api"
	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type httpDeps struct {
	dbPool   *pgxpool.Pool
	redis    *redis.Client
	auth     *api.Handler
	registry *prometheus.Registry
}

func registerHTTP(mux *http.ServeMux, log Logger, cfg Config, deps httpDeps) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && deps.dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if deps.dbPool != nil {
			if err := PingDB(r.Context(), deps.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		// Redis backs fail-open components only; a failed ping is logged and readiness holds.
		if deps.redis != nil {
			if err := PingRedis(r.Context(), deps.redis, time.Second); err != nil {
				log.Warn("readyz.redis.degraded", "err", err)
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if deps.registry != nil {
		mux.Handle("/metrics", metrics.Handler(deps.registry))
	}

	if deps.auth != nil {
		deps.auth.Register(mux)
	}
}
