package api

import (
	"net/netip"

	"github.com/okian/geocapture/pkg/logger"
)

const defaultMaxBodyBytes int64 = 64 << 10

type options struct {
	rps            float64
	burst          int
	maxBodyBytes   int64
	dashboardLimit int
	trusted        []netip.Prefix
	logger         logger.Logger
}

func defaultOptions() options {
	return options{
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       logger.Nop(),
	}
}

// Option configures a Server.
type Option func(*options)

// WithRateLimit limits each origin to rps capture requests per second with
// the given burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rps = rps
		o.burst = max(burst, 1)
	}
}

// WithMaxBodyBytes caps capture request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// WithDashboardLimit caps the number of entries the dashboard renders.
func WithDashboardLimit(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.dashboardLimit = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTrustedProxies honors X-Forwarded-For and X-Real-IP only on requests
// whose peer address falls inside one of prefixes.
func WithTrustedProxies(prefixes ...netip.Prefix) Option {
	return func(o *options) {
		o.trusted = append(o.trusted, prefixes...)
	}
}
