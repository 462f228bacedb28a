package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/geocapture/internal/adapters/submit"
	"github.com/okian/geocapture/internal/domain/model"
)

// Capture endpoint paths. The underscore forms are kept for older clients.
const (
	PathCoarse        = submit.PathCoarse
	PathPrecise       = submit.PathPrecise
	PathDenied        = submit.PathDenied
	PathAuto          = "/capture"
	LegacyPathCoarse  = "/capture_ip"
	LegacyPathPrecise = "/capture_gps"
	LegacyPathDenied  = "/capture_denied"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CaptureDependencies
	SummaryProvider
	ListingProvider
	DashboardProvider
}

// Server wires HTTP routes for the capture API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	captureHandler   *CaptureHandler
	eventsHandler    *EventsHandler
	dashboardHandler *dashboardHandler

	origins *OriginResolver
	limiter *OriginLimiter
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		healthHandler:    NewHealthHandler(nil),
		statsHandler:     NewStatsHandler(deps, statsProvider),
		captureHandler:   NewCaptureHandler(deps, cfg.maxBodyBytes, cfg.logger),
		eventsHandler:    NewEventsHandler(deps),
		dashboardHandler: newDashboardHandler(deps, cfg.dashboardLimit, cfg.logger),
		origins:          NewOriginResolver(cfg.trusted...),
	}
	if cfg.rps > 0 {
		s.limiter = NewOriginLimiter(cfg.rps, cfg.burst)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandleListEvents, "events"))
	mux.HandleFunc("/dashboard", MetricsMiddleware(s.dashboardHandler.HandleDashboard, "dashboard"))
	mux.HandleFunc("/logs", MetricsMiddleware(s.dashboardHandler.HandleDashboard, "dashboard"))

	captures := []struct {
		paths    []string
		kind     model.Kind
		endpoint string
	}{
		{[]string{PathCoarse, LegacyPathCoarse}, model.KindCoarseLocation, "capture_coarse"},
		{[]string{PathPrecise, LegacyPathPrecise}, model.KindPreciseLocation, "capture_precise"},
		{[]string{PathDenied, LegacyPathDenied}, model.KindConsentDenied, "capture_denied"},
	}
	for _, c := range captures {
		h := s.capture(s.captureHandler.Handle(c.kind), c.endpoint)
		for _, p := range c.paths {
			mux.HandleFunc(p, h)
		}
	}
	mux.HandleFunc(PathAuto, s.capture(s.captureHandler.HandleAuto, "capture"))
}

// capture wraps a capture handler with metrics, origin extraction and the
// per-origin limiter.
func (s *Server) capture(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	if s.limiter != nil {
		next = s.limiter.Middleware(next, endpoint)
	}
	return MetricsMiddleware(s.origins.Middleware(next), endpoint)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
