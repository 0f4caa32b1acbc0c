// Package metrics exposes Prometheus counters for the auth engine.
//
// All methods are safe on a nil *Auth so components can run without metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "laba"

// Auth holds the auth engine counters.
type Auth struct {
	logins          *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	reuseDetected   prometheus.Counter
	deviceMismatch  prometheus.Counter
	sessionsEvicted prometheus.Counter
	rateLimited     *prometheus.CounterVec
	failOpen        *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	cleanupDeleted  prometheus.Counter
}

// New registers the auth counters on reg.
func New(reg prometheus.Registerer) *Auth {
	m := &Auth{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "refreshes_total",
			Help: "Refresh attempts by result.",
		}, []string{"result"}),
		reuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "refresh_reuse_detected_total",
			Help: "Replayed refresh tokens that triggered a kill switch.",
		}),
		deviceMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "device_mismatch_total",
			Help: "Refreshes whose device fingerprint differed from issuance.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "sessions_evicted_total",
			Help: "Sessions revoked by the per-user session cap.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ratelimit", Name: "rejected_total",
			Help: "Requests rejected by a rate-limit budget.",
		}, []string{"budget"}),
		failOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "fail_open_total",
			Help: "Backend errors swallowed by fail-open components.",
		}, []string{"component"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "auth", Name: "alerts_total",
			Help: "Compromise alerts by delivery result.",
		}, []string{"result"}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cleanup", Name: "deleted_total",
			Help: "Refresh token records removed by the cleanup job.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.logins, m.refreshes, m.reuseDetected, m.deviceMismatch, m.sessionsEvicted,
			m.rateLimited, m.failOpen, m.alerts, m.cleanupDeleted,
		)
	}
	return m
}

// NewRegistry returns a registry with the Go and process collectors installed.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *Auth) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Auth) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Auth) ReuseDetected() {
	if m == nil {
		return
	}
	m.reuseDetected.Inc()
}

func (m *Auth) DeviceMismatch() {
	if m == nil {
		return
	}
	m.deviceMismatch.Inc()
}

func (m *Auth) SessionEvicted() {
	if m == nil {
		return
	}
	m.sessionsEvicted.Inc()
}

func (m *Auth) RateLimited(budget string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(budget).Inc()
}

// FailOpen counts a swallowed backend error ("ratelimit", "lock").
func (m *Auth) FailOpen(component string) {
	if m == nil {
		return
	}
	m.failOpen.WithLabelValues(component).Inc()
}

func (m *Auth) Alert(result string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(result).Inc()
}

func (m *Auth) CleanupDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cleanupDeleted.Add(float64(n))
}
