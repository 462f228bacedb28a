// Package repository owns the process-lifetime event log.
package repository

import (
	"context"
	"errors"

	"github.com/okian/geocapture/internal/domain/model"
)

// Store provides append and read access to the event log.
type Store interface {
	// Append stamps ev with its ID, sequence and receive time, appends it and
	// flushes the full log before returning. A flush failure does not undo
	// the append; it is reported in Appended.FlushErr.
	Append(ctx context.Context, ev model.CaptureEvent) (Appended, error)

	// Snapshot returns a copy of the log in append order.
	Snapshot(ctx context.Context) []model.CaptureEvent

	// Len returns the number of appended events.
	Len(ctx context.Context) int
}

// Flusher writes the full log to durable storage. It is called with the
// log's write lock held and must not retain events.
type Flusher interface {
	Flush(ctx context.Context, events []model.CaptureEvent) error
}

// Appended acknowledges one append.
type Appended struct {
	Event    model.CaptureEvent
	FlushErr error
}

// Flushers runs every flusher in order on each flush and joins their
// errors. One failing writer does not stop the others.
type Flushers []Flusher

// Flush implements Flusher.
func (fs Flushers) Flush(ctx context.Context, events []model.CaptureEvent) error {
	var errs []error
	for _, f := range fs {
		if err := f.Flush(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
