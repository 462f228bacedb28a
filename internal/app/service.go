// Package service wires ingestion, durability, aggregation and operator
// notices behind the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/okian/geocapture/internal/adapters/mq/queue"
	"github.com/okian/geocapture/internal/adapters/mq/worker"
	"github.com/okian/geocapture/internal/adapters/notifier"
	"github.com/okian/geocapture/internal/adapters/persistence"
	"github.com/okian/geocapture/internal/adapters/repository"
	"github.com/okian/geocapture/internal/domain/aggregate"
	"github.com/okian/geocapture/internal/domain/classify"
	"github.com/okian/geocapture/internal/domain/model"
	"github.com/okian/geocapture/pkg/logger"
	"github.com/okian/geocapture/pkg/metrics"
)

const (
	defaultArtifactPath    = "locations.json"
	defaultNoticeQueueSize = 1024
	defaultNoticeWorkers   = 1
	stopTimeout            = 5 * time.Second

	StatusSuccess = "success"
	StatusLogged  = "logged"
)

// Ack acknowledges an accepted submission. It never echoes the position.
type Ack struct {
	Status string `json:"status"`
}

// Service implements the API dependencies for the capture system.
type Service struct {
	mu sync.RWMutex

	// Core components
	log     *repository.EventLog
	writer  *persistence.FileWriter
	archive *persistence.Archive
	notices *queue.InMemoryQueue
	pool    *worker.Pool

	// Configuration
	artifactPath    string
	archivePath     string
	noticeQueueSize int
	noticeWorkers   int
	notifier        worker.Notifier
	noticeOut       io.Writer
	clock           func() time.Time

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithArtifactPath sets where the full log is persisted after every append.
// An empty path disables persistence.
func WithArtifactPath(path string) Option {
	return func(s *Service) {
		s.artifactPath = path
	}
}

// WithArchivePath keeps every event in a Badger archive at path as well.
// An empty path disables the archive.
func WithArchivePath(path string) Option {
	return func(s *Service) {
		s.archivePath = path
	}
}

// WithNoticeQueueSize sets the capacity of the operator notice queue.
func WithNoticeQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.noticeQueueSize = size
		}
	}
}

// WithNoticeWorkers sets the number of notice workers.
func WithNoticeWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.noticeWorkers = count
		}
	}
}

// WithNotifier replaces the console notifier.
func WithNotifier(n worker.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithNoticeOutput points the default console notifier at w.
func WithNoticeOutput(w io.Writer) Option {
	return func(s *Service) {
		s.noticeOut = w
	}
}

// WithClock overrides the receive-time clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		artifactPath:    defaultArtifactPath,
		noticeQueueSize: defaultNoticeQueueSize,
		noticeWorkers:   defaultNoticeWorkers,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the event log and starts the notice workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting capture service...")

	var flushers repository.Flushers
	if s.artifactPath != "" {
		w, err := persistence.NewFileWriter(s.artifactPath,
			persistence.WithLogger(s.logger.Named("persistence")))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStart, err)
		}
		s.writer = w
		flushers = append(flushers, w)
	}
	if s.archivePath != "" {
		a, err := persistence.OpenArchive(s.archivePath,
			persistence.WithArchiveLogger(s.logger.Named("archive")))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStart, err)
		}
		s.archive = a
		flushers = append(flushers, a)
	}
	logOpts := []repository.Option{repository.WithClock(s.clock)}
	if len(flushers) > 0 {
		logOpts = append(logOpts, repository.WithFlusher(flushers))
	}
	s.log = repository.NewEventLog(logOpts...)

	if s.notifier == nil {
		s.notifier = notifier.NewConsoleNotifier(s.noticeOut)
	}
	s.notices = queue.NewInMemoryQueue(queue.WithCapacity(s.noticeQueueSize))
	s.pool = worker.NewPool(s.noticeWorkers, s.notices, s.notifier,
		worker.WithLogger(s.logger))
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "capture service started",
		logger.String("artifact", s.artifactPath),
		logger.Int("noticeWorkers", s.pool.Size()),
		logger.Int("noticeQueueSize", s.noticeQueueSize),
	)
	return nil
}

// Stop refuses further submissions, drains pending notices and reports the
// final counts. The log stays readable.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping capture service...")

	_ = s.log.Close()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "notice workers stopped before draining", logger.Error(err))
	}
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			s.logger.Warn(ctx, "archive close failed", logger.Error(err))
		}
		s.archive = nil
	}

	sum := aggregate.Summarize(s.log.Snapshot(ctx))
	s.started = false
	s.logger.Info(ctx, "capture service stopped",
		logger.Int("total", sum.Total),
		logger.Int("coarse", sum.CoarseCount),
		logger.Int("precise", sum.PreciseCount),
		logger.Int("denied", sum.DeniedCount),
		logger.String("artifact", s.artifactPath),
		logger.String("archive", s.archivePath),
	)
}

// Submit classifies payload as kind, appends it and flushes the log. A flush
// failure is logged but does not fail the submission.
func (s *Service) Submit(ctx context.Context, kind model.Kind, payload map[string]any, origin string) (Ack, error) {
	s.mu.RLock()
	started, log, notices, lg := s.started, s.log, s.notices, s.logger
	s.mu.RUnlock()

	if !started {
		return Ack{}, ErrNotStarted
	}

	ev, err := classify.Classify(kind, payload, origin)
	if err != nil {
		metrics.RecordEventRejected(kind.String(), "malformed")
		lg.Debug(ctx, "rejected submission",
			logger.String("kind", kind.String()),
			logger.String("origin", origin),
			logger.Error(err),
		)
		return Ack{}, err
	}

	res, err := log.Append(ctx, ev)
	if err != nil {
		reason := "append_failed"
		if errors.Is(err, repository.ErrClosed) {
			reason = "closed"
		}
		metrics.RecordEventRejected(kind.String(), reason)
		return Ack{}, fmt.Errorf("append %s event: %w", kind, err)
	}
	metrics.RecordEventAccepted(kind.String())

	if res.FlushErr != nil {
		lg.Warn(ctx, "event kept in memory but not persisted",
			logger.Int64("seq", int64(res.Event.Seq)),
			logger.Error(res.FlushErr),
		)
	}

	if !notices.Enqueue(ctx, res.Event) {
		lg.Debug(ctx, "operator notice dropped", logger.Int64("seq", int64(res.Event.Seq)))
	}

	lg.Info(ctx, "capture accepted",
		logger.String("kind", kind.String()),
		logger.Int64("seq", int64(res.Event.Seq)),
		logger.String("origin", origin),
	)

	if kind == model.KindConsentDenied {
		return Ack{Status: StatusLogged}, nil
	}
	return Ack{Status: StatusSuccess}, nil
}

// SubmitAuto discriminates the kind from the payload "type" field.
func (s *Service) SubmitAuto(ctx context.Context, payload map[string]any, origin string) (Ack, error) {
	kind, err := classify.KindOf(payload)
	if err != nil {
		metrics.RecordEventRejected(model.KindUnknown.String(), "malformed")
		return Ack{}, err
	}
	return s.Submit(ctx, kind, payload, origin)
}

// Events returns a copy of the log in append order.
func (s *Service) Events(ctx context.Context) []model.CaptureEvent {
	s.mu.RLock()
	log := s.log
	s.mu.RUnlock()
	if log == nil {
		return nil
	}
	return log.Snapshot(ctx)
}

// Summary computes the counts over the current log.
func (s *Service) Summary(ctx context.Context) aggregate.Summary {
	return aggregate.Summarize(s.Events(ctx))
}

// Listing renders the current log most recent first.
func (s *Service) Listing(ctx context.Context, opts aggregate.ListOptions) []aggregate.Entry {
	return aggregate.Listing(s.Events(ctx), opts)
}

// View computes the summary and the listing from one snapshot, so the two
// always agree.
func (s *Service) View(ctx context.Context, opts aggregate.ListOptions) (aggregate.Summary, []aggregate.Entry) {
	events := s.Events(ctx)
	return aggregate.Summarize(events), aggregate.Listing(events, opts)
}

// ArtifactPath returns the persisted log location, or "" when disabled.
func (s *Service) ArtifactPath() string {
	return s.artifactPath
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"artifactPath":    s.artifactPath,
		"archivePath":     s.archivePath,
		"noticeWorkers":   s.noticeWorkers,
		"noticeQueueSize": s.noticeQueueSize,
	}

	if s.log != nil {
		flushes, failures, lastErr := s.log.FlushStats()
		stats["logLength"] = s.log.Len(ctx)
		stats["flushes"] = flushes
		stats["flushFailures"] = failures
		if lastErr != nil {
			stats["lastFlushError"] = lastErr.Error()
		}
	}
	if s.started {
		stats["noticeQueueLength"] = s.notices.Len(ctx)
	}

	return stats
}
