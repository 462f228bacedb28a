// Package site serves the presentation page that runs the capture flow in
// the subject's browser.
package site

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/okian/geocapture/internal/adapters/submit"
	"github.com/okian/geocapture/internal/domain/acquisition"
	"github.com/okian/geocapture/pkg/logger"
)

// Error constants
var (
	ErrUnknownTemplate = errors.New("unknown presentation template")
	ErrServe           = errors.New("presentation page serve failed")
)

const (
	TemplateStandard = "standard"
	TemplateMinimal  = "minimal"

	defaultLookupURL = "https://ipapi.co/json/"
)

//go:embed static/*.html
var staticFS embed.FS

var pages = template.Must(template.ParseFS(staticFS, "static/*.html"))

// Templates lists the selectable presentation templates.
func Templates() []string {
	return []string{TemplateStandard, TemplateMinimal}
}

// FlowConfig is what the page script needs to run the acquisition flow.
type FlowConfig struct {
	LookupURL           string
	CoarseEndpoint      string
	PreciseEndpoint     string
	DeniedEndpoint      string
	RedirectURL         string
	TimeoutMS           int64
	MaximumAgeMS        int64
	HighAccuracy        bool
	PresentationDelayMS int64
}

// Handler renders the selected template on GET /.
type Handler struct {
	name   string
	flow   FlowConfig
	logger logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithTemplate selects the presentation template by name.
func WithTemplate(name string) Option {
	return func(h *Handler) {
		h.name = strings.ToLower(strings.TrimSpace(name))
	}
}

// WithLookupURL sets the coarse lookup service the page queries.
func WithLookupURL(u string) Option {
	return func(h *Handler) {
		if u != "" {
			h.flow.LookupURL = u
		}
	}
}

// WithRedirectURL sets where every flow ends.
func WithRedirectURL(u string) Option {
	return func(h *Handler) {
		if u != "" {
			h.flow.RedirectURL = u
		}
	}
}

// WithPresentationDelay sets the pause before the redirect.
func WithPresentationDelay(d time.Duration) Option {
	return func(h *Handler) {
		if d >= 0 {
			h.flow.PresentationDelayMS = d.Milliseconds()
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler builds a handler. The precise request options are fixed by the
// acquisition flow and cannot be overridden.
func NewHandler(opts ...Option) (*Handler, error) {
	h := &Handler{
		name: TemplateStandard,
		flow: FlowConfig{
			LookupURL:           defaultLookupURL,
			CoarseEndpoint:      submit.PathCoarse,
			PreciseEndpoint:     submit.PathPrecise,
			DeniedEndpoint:      submit.PathDenied,
			RedirectURL:         acquisition.DefaultRedirectURL,
			TimeoutMS:           acquisition.PreciseTimeout.Milliseconds(),
			MaximumAgeMS:        acquisition.PreciseMaximumAge.Milliseconds(),
			HighAccuracy:        acquisition.PreciseHighAccuracy,
			PresentationDelayMS: acquisition.DefaultPresentationDelay.Milliseconds(),
		},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if !slices.Contains(Templates(), h.name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, h.name)
	}
	return h, nil
}

// Flow returns the constants the page is rendered with.
func (h *Handler) Flow() FlowConfig { return h.flow }

// ServeHTTP handles GET / and answers 404 for anything else.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		http.NotFound(w, r)
		return
	}

	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, h.name+".html", h.flow); err != nil {
		h.logger.Error(r.Context(), "render presentation page", logger.String("template", h.name), logger.Error(err))
		http.Error(w, ErrServe.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

// Register attaches the presentation page at / to mux.
func Register(_ context.Context, mux *http.ServeMux, opts ...Option) error {
	if mux == nil {
		panic("mux is nil")
	}
	h, err := NewHandler(opts...)
	if err != nil {
		return err
	}
	mux.Handle("/", h)
	return nil
}
