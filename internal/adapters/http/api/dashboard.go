package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/okian/geocapture/internal/domain/aggregate"
	"github.com/okian/geocapture/pkg/logger"
)

// DashboardProvider supplies a summary and listing taken from one snapshot.
type DashboardProvider interface {
	View(ctx context.Context, opts aggregate.ListOptions) (aggregate.Summary, []aggregate.Entry)
}

// dashboardHandler renders the operator dashboard.
type dashboardHandler struct {
	deps   DashboardProvider
	limit  int
	logger logger.Logger
}

func newDashboardHandler(deps DashboardProvider, limit int, l logger.Logger) *dashboardHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &dashboardHandler{deps: deps, limit: limit, logger: l}
}

type dashboardView struct {
	Summary     aggregate.Summary
	Entries     []aggregate.Entry
	GeneratedAt time.Time
}

// HandleDashboard handles GET /dashboard and GET /logs. Each request renders a
// fresh summary and listing.
func (h *dashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	summary, entries := h.deps.View(ctx, aggregate.ListOptions{Limit: h.limit})
	view := dashboardView{
		Summary:     summary,
		Entries:     entries,
		GeneratedAt: time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, view); err != nil {
		h.logger.Error(ctx, "dashboard render failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", wrapKind("api.dashboard", ErrRenderFailed, nil))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
