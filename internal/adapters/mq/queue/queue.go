// Package queue buffers accepted capture events for asynchronous operator
// notices. Enqueue never blocks the ingestion path: a full queue drops.
package queue

import (
	"context"
	"sync"

	"github.com/okian/geocapture/internal/domain/model"
	"github.com/okian/geocapture/pkg/metrics"
)

const defaultCapacity = 1024

// Notice is the payload flowing through the queue.
type Notice = model.CaptureEvent

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a notice. Returns false if it was dropped.
	Enqueue(ctx context.Context, n Notice) bool

	// Dequeue returns a channel of notices, closed when the queue closes.
	Dequeue(ctx context.Context) <-chan Notice

	// Len returns the number of buffered notices.
	Len(ctx context.Context) int

	// Close stops accepting notices. Buffered notices are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	notices  chan Notice
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.notices = make(chan Notice, q.capacity)
	metrics.UpdateNoticeQueueSize(0)
	return q
}

// Enqueue adds a notice if there is room.
func (q *InMemoryQueue) Enqueue(ctx context.Context, n Notice) bool { //nolint:gocritic // hugeParam: passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordNoticeDropped()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.notices <- n:
		metrics.UpdateNoticeQueueSize(len(q.notices))
		return true
	case <-ctx.Done():
		metrics.RecordNoticeDropped()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordNoticeDropped()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that receives notices as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Notice {
	out := make(chan Notice)
	go func() {
		defer close(out)
		for n := range q.notices {
			select {
			case out <- n:
				metrics.UpdateNoticeQueueSize(len(q.notices))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of buffered notices.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.notices)
	metrics.UpdateNoticeQueueSize(size)
	return size
}

// Close shuts the queue. Safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.notices)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
