package acquisition

import (
	"time"

	"github.com/okian/geocapture/pkg/logger"
)

// Option configures a Flow.
type Option func(*Flow)

// WithFlowID sets the flow identifier used in logs.
func WithFlowID(id string) Option {
	return func(f *Flow) {
		if id != "" {
			f.id = id
		}
	}
}

// WithPresentationDelay sets the pause between the final submission and
// the redirect.
func WithPresentationDelay(d time.Duration) Option {
	return func(f *Flow) {
		if d >= 0 {
			f.delay = d
		}
	}
}

// WithRedirect sets where the subject goes when the flow completes.
func WithRedirect(r Redirector, url string) Option {
	return func(f *Flow) {
		f.redirector = r
		if url != "" {
			f.redirectURL = url
		}
	}
}

// WithClientInfo sets the metadata attached to every payload.
func WithClientInfo(c ClientInfo) Option {
	return func(f *Flow) {
		f.client = c
	}
}

// WithLogger sets the flow logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.log = l
		}
	}
}

// WithClock overrides the payload timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}
