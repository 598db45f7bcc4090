package routing

import (
	"github.com/go-chi/chi/v5"
	"github.com/teilomillet/vitsa/server/metrics"
)

// DefaultMetricsPath is used when no path is configured.
const DefaultMetricsPath = "/metrics"

// RegisterMetricsRoutes adds the Prometheus scrape endpoint.
func RegisterMetricsRoutes(r chi.Router, m *metrics.Metrics, path string) {
	if path == "" {
		path = DefaultMetricsPath
	}
	r.Method("GET", path, m.Handler())
}
