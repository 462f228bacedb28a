package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/geocapture/pkg/logger"
)

const maxStatsBody = 1 << 20

// HTTPClient wraps http.Client for the read endpoints.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatsBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", path, resp.StatusCode)
	}
	return body, nil
}

// checkHealth verifies the service is running.
func (c *HTTPClient) checkHealth(ctx context.Context) error {
	if _, err := c.get(ctx, "/healthz"); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	return nil
}

// counts fetches the current capture summary.
func (c *HTTPClient) counts(ctx context.Context) (Counts, error) {
	body, err := c.get(ctx, "/stats")
	if err != nil {
		return Counts{}, err
	}
	var out Counts
	if err := json.Unmarshal(body, &out); err != nil {
		return Counts{}, fmt.Errorf("decode stats: %w", err)
	}
	return out, nil
}
