// Package lookup is an HTTP client for the coarse network-location service.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/geocapture/internal/domain/acquisition"
)

const (
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 64 << 10
)

// response mirrors the provider contract. Coordinates are pointers so a
// missing field can be told apart from zero.
type response struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
	CountryName string   `json:"country_name"`
	IP          string   `json:"ip"`
	Org         string   `json:"org"`
	Postal      string   `json:"postal"`
	Timezone    string   `json:"timezone"`
	Error       bool     `json:"error"`
	Reason      string   `json:"reason"`
}

// Client implements acquisition.CoarseLookup over HTTP.
type Client struct {
	url  string
	http *http.Client
	// forwardedFor, when set, is sent as X-Forwarded-For so a provider
	// resolves that address instead of the caller's.
	forwardedFor string
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

// WithForwardedFor asks the provider to resolve addr.
func WithForwardedFor(addr string) Option {
	return func(cl *Client) {
		cl.forwardedFor = addr
	}
}

// NewClient creates a lookup client for url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup fetches the coarse position. Every failure wraps
// acquisition.ErrLookupUnavailable.
func (c *Client) Lookup(ctx context.Context) (acquisition.LookupResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return acquisition.LookupResult{}, fmt.Errorf("%w: build request: %v", acquisition.ErrLookupUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", c.forwardedFor)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return acquisition.LookupResult{}, fmt.Errorf("%w: %v", acquisition.ErrLookupUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return acquisition.LookupResult{}, fmt.Errorf("%w: status %d", acquisition.ErrLookupUnavailable, resp.StatusCode)
	}

	var r response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&r); err != nil {
		return acquisition.LookupResult{}, fmt.Errorf("%w: decode: %v", acquisition.ErrLookupUnavailable, err)
	}
	if r.Error {
		return acquisition.LookupResult{}, fmt.Errorf("%w: provider: %s", acquisition.ErrLookupUnavailable, r.Reason)
	}
	if r.Latitude == nil || r.Longitude == nil {
		return acquisition.LookupResult{}, fmt.Errorf("%w: response without coordinates", acquisition.ErrLookupUnavailable)
	}

	return acquisition.LookupResult{
		Latitude:    *r.Latitude,
		Longitude:   *r.Longitude,
		City:        r.City,
		Region:      r.Region,
		CountryName: r.CountryName,
		IP:          r.IP,
		Org:         r.Org,
		Postal:      r.Postal,
		Timezone:    r.Timezone,
	}, nil
}
