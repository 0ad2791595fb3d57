package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the counters below.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the session client
type Metrics struct {
	// Token refresh metrics
	RefreshAttempts *prometheus.CounterVec
	RefreshShared   prometheus.Counter
	RefreshDuration prometheus.Histogram

	// Logout metrics
	Logouts *prometheus.CounterVec

	// Interceptor metrics
	RequestRetries      *prometheus.CounterVec
	UnauthorizedSignals prometheus.Counter

	// State machine metrics
	StateTransitions *prometheus.CounterVec

	// Token store metrics
	StoreErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		RefreshAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapx_token_refresh_total",
				Help: "Total number of access token refresh round trips",
			},
			[]string{"outcome", "error_code"},
		),
		RefreshShared: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mapx_token_refresh_shared_total",
				Help: "Refresh requests served by an already in-flight refresh",
			},
		),
		RefreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mapx_token_refresh_duration_seconds",
				Help:    "Refresh round trip duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),

		Logouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapx_logout_total",
				Help: "Total number of logouts by scope and remote outcome",
			},
			[]string{"scope", "remote"},
		),

		RequestRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapx_request_retries_total",
				Help: "Requests replayed after a 401/403 response",
			},
			[]string{"status"},
		),
		UnauthorizedSignals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mapx_unauthorized_signals_total",
				Help: "Number of api:unauthorized events published",
			},
		),

		StateTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapx_auth_state_transitions_total",
				Help: "Auth state machine transitions by target phase",
			},
			[]string{"phase"},
		),

		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mapx_token_store_errors_total",
				Help: "Token store operation failures",
			},
			[]string{"op"},
		),
	}
}

// RecordRefresh records a completed refresh round trip
func (m *Metrics) RecordRefresh(success bool, errorCode string, seconds float64) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	m.RefreshAttempts.WithLabelValues(outcome, errorCode).Inc()
	m.RefreshDuration.Observe(seconds)
}

// RecordSharedRefresh records a caller that joined an in-flight refresh
func (m *Metrics) RecordSharedRefresh() {
	if m == nil {
		return
	}
	m.RefreshShared.Inc()
}

// RecordLogout records a logout and whether the remote call succeeded
func (m *Metrics) RecordLogout(scope string, remoteOK bool) {
	if m == nil {
		return
	}
	remote := OutcomeSuccess
	if !remoteOK {
		remote = OutcomeFailure
	}
	m.Logouts.WithLabelValues(scope, remote).Inc()
}

// RecordRetry records a request replayed after the given status
func (m *Metrics) RecordRetry(status string) {
	if m == nil {
		return
	}
	m.RequestRetries.WithLabelValues(status).Inc()
}

// RecordUnauthorized records a published api:unauthorized event
func (m *Metrics) RecordUnauthorized() {
	if m == nil {
		return
	}
	m.UnauthorizedSignals.Inc()
}

// RecordTransition records a state machine transition
func (m *Metrics) RecordTransition(phase string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(phase).Inc()
}

// RecordStoreError records a failed token store operation
func (m *Metrics) RecordStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}
