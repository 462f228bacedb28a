// Package api serves the capture ingestion endpoints and the read views.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/geocapture/pkg/metrics"
)

const maxScrapesInFlight = 4

// HealthHandler exposes the service metrics. A scrape that answers is the
// liveness signal.
type HealthHandler struct {
	metrics http.Handler
}

// NewHealthHandler serves g, or the service registry when g is nil.
func NewHealthHandler(g prometheus.Gatherer) *HealthHandler {
	if g == nil {
		g = metrics.GetRegistry()
	}
	return &HealthHandler{
		metrics: promhttp.HandlerFor(g, promhttp.HandlerOpts{
			ErrorHandling:       promhttp.ContinueOnError,
			MaxRequestsInFlight: maxScrapesInFlight,
		}),
	}
}

// HandleHealth handles GET /healthz.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	h.metrics.ServeHTTP(w, r)
}
