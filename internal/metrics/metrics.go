// Package metrics registers and exposes the provider's Prometheus
// metrics: generic HTTP instrumentation plus webid verification and
// provider discovery outcomes.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solid/oidc-auth-manager/internal/core"
)

var (
	// HTTPInFlight counts requests currently being served.
	HTTPInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	// HTTPRequestsTotal counts finished requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webid_verifications_total",
			Help: "WebID verification decisions by result.",
		},
		[]string{"result"},
	)

	discoveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_discovery_duration_seconds",
			Help:    "Preferred provider discovery latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Live browser sessions.",
	})
)

// Init registers all metrics with the default registry. Call once at
// startup.
func Init() {
	prometheus.MustRegister(
		HTTPInFlight,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		verificationsTotal,
		discoveryDuration,
		sessionsActive,
	)
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Verification result labels.
const (
	ResultGranted         = "granted"
	ResultNone            = "none"
	ResultMalformed       = "malformed_claims"
	ResultInvalidURI      = "invalid_identity_uri"
	ResultIssuerMismatch  = "issuer_mismatch"
	ResultDiscoveryFailed = "discovery_failed"
)

// VerificationResult maps a verification outcome to its metric label.
func VerificationResult(webid string, err error) string {
	switch {
	case errors.Is(err, core.ErrMalformedClaims):
		return ResultMalformed
	case errors.Is(err, core.ErrInvalidIdentityURI):
		return ResultInvalidURI
	case errors.Is(err, core.ErrIssuerMismatch):
		return ResultIssuerMismatch
	case errors.Is(err, core.ErrDiscoveryFailed):
		return ResultDiscoveryFailed
	case err != nil:
		return "error"
	case webid == "":
		return ResultNone
	default:
		return ResultGranted
	}
}

// ObserveVerification counts one verification decision.
func ObserveVerification(result string) {
	verificationsTotal.WithLabelValues(result).Inc()
}

// ObserveDiscovery records one discovery attempt.
func ObserveDiscovery(outcome string, d time.Duration) {
	discoveryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// SetActiveSessions publishes the current session count.
func SetActiveSessions(n int) {
	sessionsActive.Set(float64(n))
}
