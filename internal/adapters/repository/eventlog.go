package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/geocapture/internal/domain/model"
	"github.com/okian/geocapture/pkg/metrics"
)

// EventLog is an append-only in-memory log guarded by one RWMutex.
//
// Writers hold the write lock across stamping, appending and flushing, so the
// artifact written for event N always contains events 1..N in log order.
// Readers take the read lock and copy.
type EventLog struct {
	mu      sync.RWMutex
	events  []model.CaptureEvent
	last    time.Time
	closed  bool
	flusher Flusher
	now     func() time.Time
	newID   func() string

	flushes       uint64
	flushFailures uint64
	lastFlushErr  error
}

// NewEventLog creates an empty log.
func NewEventLog(opts ...Option) *EventLog {
	l := &EventLog{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	metrics.UpdateEventLogSize(0)
	return l
}

// Append implements Store.
func (l *EventLog) Append(ctx context.Context, ev model.CaptureEvent) (Appended, error) {
	if err := ctx.Err(); err != nil {
		return Appended{}, err
	}
	if !ev.Kind.Valid() {
		return Appended{}, fmt.Errorf("%w: kind %d", ErrInvalidEvent, ev.Kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Appended{}, ErrClosed
	}

	// time.Time.UTC drops the monotonic reading, so wall-clock steps are
	// clamped to keep receive times non-decreasing in log order.
	received := l.now().UTC()
	if received.Before(l.last) {
		received = l.last
	}
	l.last = received

	ev.ID = l.newID()
	ev.Seq = uint64(len(l.events)) + 1
	ev.ReceivedAt = received
	l.events = append(l.events, ev)
	metrics.UpdateEventLogSize(len(l.events))

	res := Appended{Event: ev}
	if l.flusher != nil {
		res.FlushErr = l.flushLocked(context.WithoutCancel(ctx))
	}
	return res, nil
}

func (l *EventLog) flushLocked(ctx context.Context) error {
	start := time.Now()
	err := l.flusher.Flush(ctx, l.events[:len(l.events):len(l.events)])
	metrics.RecordFlush(float64(time.Since(start).Microseconds())/1000.0, err == nil)

	l.flushes++
	if err != nil {
		l.flushFailures++
		l.lastFlushErr = err
		metrics.RecordErrorByComponent("repository", "flush_failed")
		return err
	}
	l.lastFlushErr = nil
	return nil
}

// Snapshot implements Store.
func (l *EventLog) Snapshot(_ context.Context) []model.CaptureEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.CaptureEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len implements Store.
func (l *EventLog) Len(_ context.Context) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// FlushStats reports flush attempts, failures and the most recent error, if
// the last flush failed.
func (l *EventLog) FlushStats() (flushes, failures uint64, lastErr error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.flushes, l.flushFailures, l.lastFlushErr
}

// Close stops accepting appends. Reads keep working.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
