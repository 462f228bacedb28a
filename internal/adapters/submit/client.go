// Package submit posts capture flow payloads to the ingestion endpoints.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/geocapture/internal/domain/model"
)

const defaultTimeout = 10 * time.Second

// Endpoint paths per kind.
const (
	PathCoarse  = "/capture-coarse"
	PathPrecise = "/capture-precise"
	PathDenied  = "/capture-denied"
)

// ErrRejected is returned when the server answers with a non-2xx status.
var ErrRejected = errors.New("submission rejected")

// Ack is the ingestion acknowledgement body.
type Ack struct {
	Status string `json:"status"`
}

// Client implements acquisition.Submitter over HTTP.
type Client struct {
	baseURL      string
	http         *http.Client
	forwardedFor string
	userAgent    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithForwardedFor sets the X-Forwarded-For header on every submission.
func WithForwardedFor(addr string) Option {
	return func(cl *Client) {
		cl.forwardedFor = addr
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// NewClient creates a submitter for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PathFor returns the endpoint path for kind.
func PathFor(kind model.Kind) (string, error) {
	switch kind {
	case model.KindCoarseLocation:
		return PathCoarse, nil
	case model.KindPreciseLocation:
		return PathPrecise, nil
	case model.KindConsentDenied:
		return PathDenied, nil
	}
	return "", fmt.Errorf("no endpoint for kind %s", kind)
}

// Submit posts payload to the endpoint for kind.
func (c *Client) Submit(ctx context.Context, kind model.Kind, payload map[string]any) error {
	_, err := c.SubmitAck(ctx, kind, payload)
	return err
}

// SubmitAck posts payload and returns the decoded acknowledgement.
func (c *Client) SubmitAck(ctx context.Context, kind model.Kind, payload map[string]any) (Ack, error) {
	path, err := PathFor(kind)
	if err != nil {
		return Ack{}, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Ack{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", c.forwardedFor)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Ack{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Ack{}, fmt.Errorf("%w: %s returned %d: %s", ErrRejected, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var ack Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return Ack{}, fmt.Errorf("decode ack: %w", err)
	}
	return ack, nil
}
