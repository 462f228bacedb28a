// Package worker delivers operator notices off the notice queue.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/geocapture/internal/adapters/mq/queue"
	"github.com/okian/geocapture/pkg/logger"
	"github.com/okian/geocapture/pkg/metrics"
)

const (
	defaultWorkerCount  = 1
	poolShutdownTimeout = 10 * time.Second
)

// Notifier renders one notice for the operator.
type Notifier interface {
	Notify(ctx context.Context, n queue.Notice) error
}

// Queue defines how workers receive notices.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Notice
}

// Worker consumes notices.
type Worker interface {
	// Run consumes until the queue closes, ctx ends or Shutdown is called.
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker delivers notices one at a time.
type InMemoryWorker struct {
	queue    Queue
	notifier Notifier
	name     string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, n Notifier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		notifier: n,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	notices := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			if err := w.deliver(ctx, n); err != nil {
				w.logger.Error(ctx, "notice delivery failed", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker without draining.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) deliver(ctx context.Context, n queue.Notice) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	if err := w.notifier.Notify(ctx, n); err != nil {
		metrics.RecordErrorByComponent("worker", "notify_failed")
		return fmt.Errorf("notify %s event %s: %w", n.Kind, n.ID, err)
	}
	metrics.RecordNoticeDelivered()
	return nil
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers.
func NewPool(workerCount int, q Queue, n Notifier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Nop(),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{}, opts...)
		wopts = append(wopts, WithName("notice-worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(q, n, wopts...)
	}
	if len(p.workers) > 0 {
		p.logger = p.workers[0].logger
	}
	metrics.UpdateNoticeWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and lets workers drain it. Workers still busy
// when ctx (or the pool timeout) expires are stopped without draining.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-drainCtx.Done():
			timedOut++
		}
	}
	if timedOut == 0 {
		metrics.UpdateNoticeWorkerCount(0)
		return nil
	}

	p.logger.Warn(ctx, "notice workers did not drain in time", logger.Int("workers", timedOut))
	for _, w := range p.workers {
		stopCtx, stop := context.WithTimeout(context.Background(), time.Second)
		_ = w.Shutdown(stopCtx)
		stop()
	}
	metrics.UpdateNoticeWorkerCount(0)
	return fmt.Errorf("notice pool drain: %w", drainCtx.Err())
}
