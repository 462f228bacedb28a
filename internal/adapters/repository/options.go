package repository

import (
	"time"

	"github.com/okian/geocapture/internal/domain/model"
)

// Option applies a configuration option to the EventLog.
type Option func(*EventLog)

// WithFlusher sets the durability writer invoked after every append.
func WithFlusher(f Flusher) Option {
	return func(l *EventLog) {
		l.flusher = f
	}
}

// WithClock overrides the receive-time source.
func WithClock(now func() time.Time) Option {
	return func(l *EventLog) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides event ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(l *EventLog) {
		if gen != nil {
			l.newID = gen
		}
	}
}

// WithInitialCapacity preallocates room for n events.
func WithInitialCapacity(n int) Option {
	return func(l *EventLog) {
		if n > 0 {
			l.events = make([]model.CaptureEvent, 0, n)
		}
	}
}
