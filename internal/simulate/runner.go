// Package simulate drives many concurrent capture flows against a running
// server and checks that the server's counts match what was acknowledged.
package simulate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/geocapture/internal/adapters/lookup"
	"github.com/okian/geocapture/internal/adapters/submit"
	"github.com/okian/geocapture/internal/domain/acquisition"
	"github.com/okian/geocapture/pkg/logger"
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	settleTimeout        = 5 * time.Second
	settleInterval       = 50 * time.Millisecond
	flowGrace            = 5 * time.Second
)

// Run executes the complete simulation workflow.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	log := logger.Get().Named("simulate")
	stats := &Stats{StartTime: time.Now()}
	reader := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := reader.checkHealth(ctx); err != nil {
		return nil, err
	}
	before, err := reader.counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read initial stats: %w", err)
	}
	stats.Before = before

	// Step 2: Run the flows
	t := &tally{}
	if err := runFlows(ctx, config, stats, t); err != nil {
		return nil, err
	}

	// Step 3: Verify the server agrees with what was acknowledged
	after, verr := settle(ctx, reader, before, t)
	stats.After = after
	stats.CoarseAccepted = int(t.coarse.Load())
	stats.PreciseAccepted = int(t.precise.Load())
	stats.DeniedLogged = int(t.denied.Load())
	stats.SubmitFailures = int(t.failed.Load())
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	// Step 4: Display final statistics
	displayFinalStats(ctx, log, stats)
	if verr != nil {
		return stats, verr
	}
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

// runFlows starts config.Flows flows, at most config.Concurrency at a time.
func runFlows(ctx context.Context, config *Config, stats *Stats, t *tally) error {
	log := logger.Get().Named("simulate")
	log.Info(ctx, "running flows",
		logger.Int("flows", config.Flows),
		logger.Int("concurrency", config.Concurrency),
		logger.Float64("rps", config.RPS))

	shared := &http.Client{Timeout: config.Timeout}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RPS), 1)
	}
	outcomes := make([]acquisition.Outcome, config.Flows)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Concurrency)
	for i := 0; i < config.Flows; i++ {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		stats.FlowsStarted++
		g.Go(func() error {
			out, err := runFlow(gctx, config, shared, t, i)
			if err != nil {
				return fmt.Errorf("flow %d: %w", i, err)
			}
			outcomes[i] = out
			if config.Verbose {
				log.Debug(gctx, "flow finished",
					logger.String("flow_id", out.FlowID),
					logger.String("state", out.Final.String()),
					logger.Int("submissions", len(out.Submitted)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("simulation interrupted: %w", err)
	}

	for _, out := range outcomes[:stats.FlowsStarted] {
		switch out.Final {
		case acquisition.StatePreciseGranted:
			stats.Granted++
		case acquisition.StatePreciseDenied:
			stats.Denied++
		}
		if out.Final == acquisition.StateCoarseOnly {
			stats.FlowsCancelled++
		} else {
			stats.FlowsCompleted++
		}
		if out.Coarse == nil {
			stats.LookupFailures++
		}
	}
	return nil
}

func runFlow(ctx context.Context, config *Config, shared *http.Client, t *tally, i int) (acquisition.Outcome, error) {
	s := newSubject(config.Seed, i, config.GrantRatio)

	var coarse acquisition.CoarseLookup = syntheticLookup{s: s}
	if config.LookupURL != "" {
		coarse = lookup.NewClient(config.LookupURL,
			lookup.WithHTTPClient(shared),
			lookup.WithForwardedFor(s.addr))
	}
	submitter := countingSubmitter{
		next: submit.NewClient(config.BaseURL,
			submit.WithHTTPClient(shared),
			submit.WithForwardedFor(s.addr),
			submit.WithUserAgent(s.client.UserAgent)),
		t: t,
	}
	trigger := &triggeringLookup{next: coarse}

	flow, err := acquisition.NewFlow(trigger, capability{s: s}, submitter,
		acquisition.WithClientInfo(s.client),
		acquisition.WithPresentationDelay(config.PresentationDelay),
		acquisition.WithLogger(logger.Get().Named("flow")),
	)
	if err != nil {
		return acquisition.Outcome{}, err
	}
	trigger.flow = flow

	fctx, cancel := context.WithTimeout(ctx, acquisition.PreciseTimeout+config.PresentationDelay+flowGrace)
	defer cancel()
	return flow.Run(fctx)
}

// settle polls /stats until the server's deltas match the acknowledged
// submissions or settleTimeout passes. Submissions run in their own
// goroutines, so the last acknowledgements can trail the flows.
func settle(ctx context.Context, reader *HTTPClient, before Counts, t *tally) (Counts, error) {
	deadline := time.Now().Add(settleTimeout)
	for {
		after, err := reader.counts(ctx)
		if err != nil {
			return Counts{}, fmt.Errorf("read final stats: %w", err)
		}
		mismatch := compare(before, after, t)
		if mismatch == nil {
			return after, nil
		}
		if time.Now().After(deadline) {
			return after, mismatch
		}
		select {
		case <-ctx.Done():
			return after, ctx.Err()
		case <-time.After(settleInterval):
		}
	}
}

func compare(before, after Counts, t *tally) error {
	checks := []struct {
		name      string
		got, want int
	}{
		{"coarse_count", after.CoarseCount - before.CoarseCount, int(t.coarse.Load())},
		{"precise_count", after.PreciseCount - before.PreciseCount, int(t.precise.Load())},
		{"denied_count", after.DeniedCount - before.DeniedCount, int(t.denied.Load())},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("%w: %s grew by %d, %d acknowledged", ErrVerification, c.name, c.got, c.want)
		}
	}
	return nil
}

// displayFinalStats logs the final simulation statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var grantRate, flowsPerSecond float64
	if decided := stats.Granted + stats.Denied; decided > 0 {
		grantRate = float64(stats.Granted) / float64(decided) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		flowsPerSecond = float64(stats.FlowsStarted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("flowsStarted", stats.FlowsStarted),
		logger.Int("flowsCompleted", stats.FlowsCompleted),
		logger.Int("flowsCancelled", stats.FlowsCancelled),
		logger.Int("granted", stats.Granted),
		logger.Int("denied", stats.Denied),
		logger.Int("lookupFailures", stats.LookupFailures),
		logger.Int("coarseAccepted", stats.CoarseAccepted),
		logger.Int("preciseAccepted", stats.PreciseAccepted),
		logger.Int("deniedLogged", stats.DeniedLogged),
		logger.Int("submitFailures", stats.SubmitFailures),
		logger.Int("serverTotal", stats.After.Total),
		logger.Float64("serverSuccessRate", stats.After.SuccessRate),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("grantRate", grantRate),
		logger.Float64("flowsPerSecond", flowsPerSecond))
}
