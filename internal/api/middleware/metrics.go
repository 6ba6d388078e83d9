package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/solid/oidc-auth-manager/internal/metrics"
)

// MetricsMiddleware records request counts and latencies. The path label
// is the matched mux pattern, not the raw URL, to keep cardinality bounded.
// It must wrap the mux directly: a middleware in between that clones the
// request (WithContext) would hide the Pattern the mux fills in.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPInFlight.Inc()
		// deferred so a panicking handler cannot leak the gauge
		defer metrics.HTTPInFlight.Dec()

		ww := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		status := strconv.Itoa(ww.statusCode)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern, status).Observe(time.Since(start).Seconds())
	})
}
