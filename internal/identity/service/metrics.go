package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors this package updates. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	LoginAttempts *prometheus.CounterVec
	SyncRuns      *prometheus.CounterVec
	SyncDuration  prometheus.Histogram
	SyncUsers     *prometheus.CounterVec
	SSOCallbacks  *prometheus.CounterVec
	SyncSkipped   prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_directory_sync_runs_total",
			Help: "Directory sync runs by result.",
		}, []string{"result"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_directory_sync_duration_seconds",
			Help:    "Wall time of directory sync runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		SyncUsers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_directory_sync_users_total",
			Help: "Users touched by directory sync by action.",
		}, []string{"action"}),
		SSOCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_sso_callbacks_total",
			Help: "SSO callbacks by protocol and outcome.",
		}, []string{"protocol", "outcome"}),
		SyncSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "identity_sync_skipped_total",
			Help: "Scheduled syncs dropped because the tenant was already syncing.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.LoginAttempts, m.SyncRuns, m.SyncDuration, m.SyncUsers, m.SSOCallbacks, m.SyncSkipped)
	}
	return m
}

func (m *Metrics) login(outcome string) {
	if m != nil {
		m.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) syncRun(result string, took time.Duration) {
	if m != nil {
		m.SyncRuns.WithLabelValues(result).Inc()
		m.SyncDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) syncUsers(action string, n int) {
	if m != nil && n > 0 {
		m.SyncUsers.WithLabelValues(action).Add(float64(n))
	}
}

func (m *Metrics) ssoCallback(protocol, outcome string) {
	if m != nil {
		m.SSOCallbacks.WithLabelValues(protocol, outcome).Inc()
	}
}

func (m *Metrics) syncSkipped() {
	if m != nil {
		m.SyncSkipped.Inc()
	}
}
