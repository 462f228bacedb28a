package api

import (
	"context"
	"net/http"

	"github.com/okian/geocapture/internal/domain/aggregate"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// SummaryProvider computes counts over the log.
type SummaryProvider interface {
	Summary(ctx context.Context) aggregate.Summary
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	summary       SummaryProvider
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(summary SummaryProvider, statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{summary: summary, statsProvider: statsProvider}
}

type statsResponse struct {
	aggregate.Summary
	Service map[string]interface{} `json:"service,omitempty"`
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	resp := statsResponse{Summary: h.summary.Summary(r.Context())}
	if h.statsProvider != nil {
		resp.Service = h.statsProvider.GetStats()
	}
	writeJSON(w, http.StatusOK, resp)
}
