// Package metrics holds the Prometheus collectors for depo-front.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session resolution outcomes.
const (
	SessionAbsent        = "absent"
	SessionValid         = "valid"
	SessionRefreshed     = "refreshed"
	SessionCleared       = "cleared"
	SessionProviderError = "provider_error"
)

// Sign-in results.
const (
	SignInSuccess            = "success"
	SignInMissingCredentials = "missing_credentials"
	SignInInvalidCredentials = "invalid_credentials"
	SignInUnavailable        = "provider_unavailable"
	SignInCSRFRejected       = "csrf_rejected"
	SignInRateLimited        = "rate_limited"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	Sessions      *prometheus.CounterVec
	SignIns       *prometheus.CounterVec
	SignOuts      *prometheus.CounterVec
	ProviderCalls *prometheus.CounterVec
	BreakerState  *prometheus.GaugeVec
	DirectoryErrs prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates collectors registered with reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depo_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "depo_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		Sessions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depo_session_resolutions_total",
				Help: "Session cookie resolutions by outcome",
			},
			[]string{"outcome"},
		),
		SignIns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depo_sign_ins_total",
				Help: "Password sign-in attempts by result",
			},
			[]string{"result"},
		),
		SignOuts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depo_sign_outs_total",
				Help: "Sign-outs by whether the provider accepted the revocation",
			},
			[]string{"provider_ok"},
		),
		ProviderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depo_provider_calls_total",
				Help: "Identity provider calls",
			},
			[]string{"provider", "op", "success"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "depo_provider_circuit_breaker_state",
				Help: "Current state of the provider circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		DirectoryErrs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "depo_user_directory_errors_total",
				Help: "Failed user directory writes",
			},
		),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSession(outcome string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSignIn(result string) {
	if m == nil {
		return
	}
	m.SignIns.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSignOut(providerOK bool) {
	if m == nil {
		return
	}
	m.SignOuts.WithLabelValues(strconv.FormatBool(providerOK)).Inc()
}

func (m *Metrics) ObserveProviderCall(provider, op string, err error) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, op, strconv.FormatBool(err == nil)).Inc()
}

// SetBreakerState records a circuit breaker state as 0, 1 or 2.
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(state)
}

func (m *Metrics) ObserveDirectoryError() {
	if m == nil {
		return
	}
	m.DirectoryErrs.Inc()
}
