// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config populated with defaults.
//   - Load(ctx) layers defaults, an optional YAML file and GEOCAPTURE_* env vars.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// Notice sinks.
const (
	NoticeSinkConsole = "console"
	NoticeSinkRedis   = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Template names the presentation template served on GET /.
	Template string `koanf:"template"`
	// RedirectURL is where every capture flow ends, regardless of outcome.
	RedirectURL string `koanf:"redirect_url"`
	// LookupURL is the coarse-location lookup service queried by the flow.
	LookupURL string `koanf:"lookup_url"`
	// PresentationDelayMS is the pause between the final event and the redirect.
	PresentationDelayMS int `koanf:"presentation_delay_ms"`

	// ArtifactPath is the file the event log is flushed to after every append.
	ArtifactPath string `koanf:"artifact_path"`
	// ArchivePath, when set, also keeps every event in a Badger database there.
	ArchivePath string `koanf:"archive_path"`

	// NoticeQueueSize bounds the operator notice queue.
	NoticeQueueSize int `koanf:"notice_queue_size"`
	// NoticeWorkers sets the number of notice workers.
	NoticeWorkers int `koanf:"notice_workers"`
	// NoticeSink selects where notices go: console or redis.
	NoticeSink string `koanf:"notice_sink"`
	// RedisURL and RedisStream configure the redis notice sink.
	RedisURL    string `koanf:"redis_url"`
	RedisStream string `koanf:"redis_stream"`

	// CaptureRPS and CaptureBurst configure the per-origin limiter on capture
	// endpoints. A CaptureRPS of zero disables limiting.
	CaptureRPS   float64 `koanf:"capture_rps"`
	CaptureBurst int     `koanf:"capture_burst"`
	// TrustedProxies lists the CIDRs (or bare addresses) whose forwarding
	// headers are honored. Empty means every origin is the peer address.
	TrustedProxies []string `koanf:"trusted_proxies"`
	// MaxBodyBytes caps capture request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// DashboardLimit caps the number of rendered dashboard entries; 0 shows all.
	DashboardLimit int `koanf:"dashboard_limit"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":8080",
		Template:            "standard",
		RedirectURL:         "https://www.google.com",
		LookupURL:           "https://ipapi.co/json/",
		PresentationDelayMS: 1500,
		ArtifactPath:        "locations.json",
		NoticeQueueSize:     1024,
		NoticeWorkers:       max(1, runtime.NumCPU()/2),
		NoticeSink:          NoticeSinkConsole,
		RedisStream:         "geocapture:notices",
		CaptureRPS:          5,
		CaptureBurst:        10,
		MaxBodyBytes:        64 << 10,
		DashboardLimit:      0,
	}
}

// Validate checks the fields that would make the service unusable.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.Template) == "":
		return fmt.Errorf("%w: template must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ArtifactPath) == "":
		return fmt.Errorf("%w: artifact_path must not be empty", ErrInvalidConfig)
	case c.PresentationDelayMS < 0:
		return fmt.Errorf("%w: presentation_delay_ms must not be negative", ErrInvalidConfig)
	case c.CaptureRPS < 0:
		return fmt.Errorf("%w: capture_rps must not be negative", ErrInvalidConfig)
	case c.CaptureRPS > 0 && c.CaptureBurst < 1:
		return fmt.Errorf("%w: capture_burst must be at least 1 when capture_rps is set", ErrInvalidConfig)
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrInvalidConfig)
	case c.NoticeSink != NoticeSinkConsole && c.NoticeSink != NoticeSinkRedis:
		return fmt.Errorf("%w: notice_sink must be %q or %q", ErrInvalidConfig, NoticeSinkConsole, NoticeSinkRedis)
	case c.NoticeSink == NoticeSinkRedis && strings.TrimSpace(c.RedisURL) == "":
		return fmt.Errorf("%w: redis_url is required for the redis notice sink", ErrInvalidConfig)
	case c.ArchivePath != "" && filepath.Clean(c.ArchivePath) == filepath.Clean(c.ArtifactPath):
		return fmt.Errorf("%w: archive_path must differ from artifact_path", ErrInvalidConfig)
	}
	for _, raw := range c.TrustedProxies {
		if !validProxyEntry(strings.TrimSpace(raw)) {
			return fmt.Errorf("%w: trusted_proxies entry %q is not a CIDR or address", ErrInvalidConfig, raw)
		}
	}
	for key, raw := range map[string]string{"redirect_url": c.RedirectURL, "lookup_url": c.LookupURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s must be an absolute URL", ErrInvalidConfig, key)
		}
	}
	return nil
}

func validProxyEntry(raw string) bool {
	if raw == "" {
		return true
	}
	if _, err := netip.ParsePrefix(raw); err == nil {
		return true
	}
	_, err := netip.ParseAddr(raw)
	return err == nil
}
