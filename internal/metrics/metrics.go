// Package metrics defines the Prometheus metrics exposed on the actuator
// endpoint.
//
// Metrics live in a dedicated registry rather than the global default so the
// actuator endpoint only serves what this service registers.
//
// Naming:
//   - cloudy_ prefix for all custom metrics
//   - _total suffix for counters
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Token verification outcomes.
const (
	OutcomeValid          = "valid"
	OutcomeMalformed      = "malformed"
	OutcomeTampered       = "tampered"
	OutcomeExpired        = "expired"
	OutcomeIssuerMismatch = "issuer_mismatch"
	OutcomeIllegalClaims  = "illegal_claims"
)

// Registry holds every metric this service exports.
var Registry = prometheus.NewRegistry()

var (
	// TokenVerificationsTotal counts session token checks by outcome.
	TokenVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudy_token_verifications_total",
			Help: "Session token verifications by outcome.",
		},
		[]string{"outcome"},
	)

	// LoginsTotal counts completed OAuth2 callbacks by provider and result.
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudy_logins_total",
			Help: "OAuth2 logon callbacks by provider and result.",
		},
		[]string{"provider", "result"},
	)

	// AccessDeniedTotal counts refused requests by reason.
	AccessDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudy_access_denied_total",
			Help: "Requests refused by authorization checks, by reason.",
		},
		[]string{"reason"},
	)

	// RedactionsTotal counts content views filtered per caller role.
	RedactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudy_redactions_total",
			Help: "Books filtered for a caller, by the caller's effective role.",
		},
		[]string{"role"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		TokenVerificationsTotal,
		LoginsTotal,
		AccessDeniedTotal,
		RedactionsTotal,
	)
}

// RecordTokenVerification records one verification outcome.
func RecordTokenVerification(outcome string) {
	TokenVerificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordLogin records one callback result ("success" or a failure reason).
func RecordLogin(provider, result string) {
	LoginsTotal.WithLabelValues(provider, result).Inc()
}

// RecordAccessDenied records one refused request.
func RecordAccessDenied(reason string) {
	AccessDeniedTotal.WithLabelValues(reason).Inc()
}

// RecordRedaction records one filtered book view.
func RecordRedaction(role string) {
	RedactionsTotal.WithLabelValues(role).Inc()
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
