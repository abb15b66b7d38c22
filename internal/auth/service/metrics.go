package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
)

// Metrics holds the reconciler's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	LoginsTotal          *prometheus.CounterVec
	LogoutsTotal         *prometheus.CounterVec
	SessionEventsTotal   *prometheus.CounterVec
	ProfileLookupsTotal  *prometheus.CounterVec
	LastLoginWritesTotal *prometheus.CounterVec
	HousekeepingDeleted  prometheus.Counter
	Authenticated        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registry when it
// is not nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_auth_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		LogoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_auth_logouts_total",
				Help: "Logout attempts by outcome",
			},
			[]string{"outcome"},
		),
		SessionEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_auth_session_events_total",
				Help: "Identity provider session events processed",
			},
			[]string{"kind"},
		),
		ProfileLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_auth_profile_lookups_total",
				Help: "Profile lookups by result",
			},
			[]string{"result"},
		),
		LastLoginWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_auth_last_login_writes_total",
				Help: "Last-login updates by status",
			},
			[]string{"status"},
		),
		HousekeepingDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_auth_housekeeping_deleted_total",
				Help: "Expired or revoked refresh sessions removed",
			},
		),
		Authenticated: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_auth_authenticated",
				Help: "1 while the reconciler holds an authenticated user",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.LoginsTotal,
			m.LogoutsTotal,
			m.SessionEventsTotal,
			m.ProfileLookupsTotal,
			m.LastLoginWritesTotal,
			m.HousekeepingDeleted,
			m.Authenticated,
		)
	}
	return m
}

func (m *Metrics) login(outcome string) {
	if m != nil {
		m.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) logout(outcome string) {
	if m != nil {
		m.LogoutsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) event(kind domain.EventKind) {
	if m != nil {
		m.SessionEventsTotal.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) lookup(result string) {
	if m != nil {
		m.ProfileLookupsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) lastLogin(status string) {
	if m != nil {
		m.LastLoginWritesTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) housekeeping(n int64) {
	if m != nil && n > 0 {
		m.HousekeepingDeleted.Add(float64(n))
	}
}

func (m *Metrics) authenticated(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Authenticated.Set(1)
	} else {
		m.Authenticated.Set(0)
	}
}
