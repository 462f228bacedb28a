package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/geocapture/internal/domain/aggregate"
	"github.com/okian/geocapture/internal/domain/model"
)

const maxEventsLimit = 1000

// ListingProvider renders the log for readers.
type ListingProvider interface {
	Listing(ctx context.Context, opts aggregate.ListOptions) []aggregate.Entry
}

// EventsHandler handles event listing requests.
type EventsHandler struct {
	deps ListingProvider
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps ListingProvider) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type eventsResponse struct {
	Count  int               `json:"count"`
	Events []aggregate.Entry `json:"events"`
}

// HandleListEvents handles GET /events?limit=N&kind=K requests.
func (h *EventsHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_events"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	opts := aggregate.ListOptions{Limit: maxEventsLimit, IncludeAuxiliary: true}
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventsLimit {
			writeError(w, http.StatusBadRequest, "bad_request",
				wrapKind(op, ErrBadRequest, fmt.Errorf("limit must be between 1 and %d", maxEventsLimit)))
			return
		}
		opts.Limit = n
	}
	if raw := q.Get("kind"); raw != "" {
		kind, err := model.ParseKind(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
			return
		}
		opts.Kind = kind
	}

	entries := h.deps.Listing(r.Context(), opts)
	writeJSON(w, http.StatusOK, eventsResponse{Count: len(entries), Events: entries})
}
