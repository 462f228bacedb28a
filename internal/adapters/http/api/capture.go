package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/geocapture/internal/adapters/repository"
	service "github.com/okian/geocapture/internal/app"
	"github.com/okian/geocapture/internal/domain/classify"
	"github.com/okian/geocapture/internal/domain/model"
	"github.com/okian/geocapture/pkg/logger"
)

// CaptureDependencies defines the submission half of Dependencies.
type CaptureDependencies interface {
	Submit(ctx context.Context, kind model.Kind, payload map[string]any, origin string) (service.Ack, error)
	SubmitAuto(ctx context.Context, payload map[string]any, origin string) (service.Ack, error)
}

// CaptureHandler accepts capture payloads.
type CaptureHandler struct {
	deps         CaptureDependencies
	maxBodyBytes int64
	logger       logger.Logger
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(deps CaptureDependencies, maxBodyBytes int64, l logger.Logger) *CaptureHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	if l == nil {
		l = logger.Nop()
	}
	return &CaptureHandler{deps: deps, maxBodyBytes: maxBodyBytes, logger: l}
}

// Handle returns the POST handler for an endpoint bound to kind.
func (h *CaptureHandler) Handle(kind model.Kind) http.HandlerFunc {
	op := "api.capture_" + kind.String()
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := h.decode(w, r, op)
		if !ok {
			return
		}
		ack, err := h.deps.Submit(r.Context(), kind, payload, OriginFromContext(r.Context()))
		h.respond(w, r, op, ack, err)
	}
}

// HandleAuto handles POST /capture, discriminated by the payload type.
func (h *CaptureHandler) HandleAuto(w http.ResponseWriter, r *http.Request) {
	const op = "api.capture"
	payload, ok := h.decode(w, r, op)
	if !ok {
		return
	}
	ack, err := h.deps.SubmitAuto(r.Context(), payload, OriginFromContext(r.Context()))
	h.respond(w, r, op, ack, err)
}

func (h *CaptureHandler) decode(w http.ResponseWriter, r *http.Request, op string) (map[string]any, bool) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return nil, false
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", wrapKind(op, ErrTooLarge, nil))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return nil, false
	}
	if payload == nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("body must be a JSON object")))
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errors.New("trailing data after JSON object")))
		return nil, false
	}
	return payload, true
}

func (h *CaptureHandler) respond(w http.ResponseWriter, r *http.Request, op string, ack service.Ack, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ack)
	case errors.Is(err, classify.ErrMalformedEvent):
		writeError(w, http.StatusBadRequest, "malformed_event", err)
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, repository.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", wrapKind(op, ErrUnavailable, nil))
	default:
		h.logger.Error(r.Context(), "capture failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", wrapKind(op, ErrInternal, errors.New("submission not recorded")))
	}
}
