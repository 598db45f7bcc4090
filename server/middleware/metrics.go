package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/teilomillet/vitsa/server/metrics"
)

// PrometheusMetrics middleware records HTTP metrics using Prometheus.
// Requests are labelled by their chi route pattern so static file paths
// and unknown URLs do not explode label cardinality.
func PrometheusMetrics(m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.ActiveRequests.WithLabelValues(r.Method).Inc()
			defer m.ActiveRequests.WithLabelValues(r.Method).Dec()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			endpoint := routePattern(r)

			m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
			m.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

			if code >= 500 {
				m.ErrorsTotal.WithLabelValues("server_error").Inc()
			} else if code >= 400 {
				m.ErrorsTotal.WithLabelValues("client_error").Inc()
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.URL.Path == "/" {
		return "/"
	}
	return "unmatched"
}
