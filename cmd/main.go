package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/okian/geocapture/internal/adapters/http/api"
	"github.com/okian/geocapture/internal/adapters/http/site"
	"github.com/okian/geocapture/internal/adapters/http/swagger"
	"github.com/okian/geocapture/internal/adapters/notifier"
	app "github.com/okian/geocapture/internal/app"
	"github.com/okian/geocapture/internal/config"
	"github.com/okian/geocapture/pkg/logger"
	"github.com/okian/geocapture/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.Get()
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		log.Warn(ctx, "invalid log_format; keeping text", logger.String("log_format", cfg.LogFormat), logger.Error(err))
	}
	log = logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithArtifactPath(cfg.ArtifactPath),
		app.WithArchivePath(cfg.ArchivePath),
		app.WithNoticeQueueSize(cfg.NoticeQueueSize),
		app.WithNoticeWorkers(cfg.NoticeWorkers),
	}
	if cfg.NoticeSink == config.NoticeSinkRedis {
		client, err := notifier.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("notice sink: %w", err)
		}
		// Deferred before Stop, so it closes after the notices drain.
		defer func() { _ = client.Close() }()
		opts = append(opts, app.WithNotifier(
			notifier.NewStreamNotifier(client, notifier.WithStream(cfg.RedisStream))))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	// Stop logs the final counts and the artifact path.
	defer svc.Stop()

	mux, err := newMux(ctx, cfg, svc, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("template", cfg.Template),
			logger.String("redirect", cfg.RedirectURL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info(context.Background(), "server stopped")
	return err
}

// newMux registers the presentation page, the API docs and the capture API.
func newMux(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) (*http.ServeMux, error) {
	mux := http.NewServeMux()

	if err := site.Register(ctx, mux,
		site.WithTemplate(cfg.Template),
		site.WithLookupURL(cfg.LookupURL),
		site.WithRedirectURL(cfg.RedirectURL),
		site.WithPresentationDelay(time.Duration(cfg.PresentationDelayMS)*time.Millisecond),
		site.WithLogger(log.Named("site")),
	); err != nil {
		return nil, fmt.Errorf("register presentation page: %w", err)
	}

	swagger.Register(ctx, mux)

	trusted, err := api.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	api.NewServer(svc, svc,
		api.WithTrustedProxies(trusted...),
		api.WithRateLimit(cfg.CaptureRPS, cfg.CaptureBurst),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithDashboardLimit(cfg.DashboardLimit),
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)

	return mux, nil
}

// startSystemMetricsUpdater updates system metrics until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	updateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
