package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/geocapture/internal/simulate"
	"github.com/okian/geocapture/pkg/logger"
)

// Default configuration constants.
const (
	defaultFlows       = 200
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultRPS         = 50
	defaultGrantRatio  = 0.5
	defaultTimeout     = 10 * time.Second
	defaultRunTimeout  = 10 * time.Minute
	defaultSeed        = 1
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:8080", "Base URL of the service")
		lookupURL   = flag.String("lookup", "", "Coarse lookup provider URL (default: synthetic results)")
		flows       = flag.Int("flows", defaultFlows, "Number of flows to run")
		concurrency = flag.Int("concurrency", runtime.NumCPU()*defaultWorkers, "Flows running at once")
		rps         = flag.Float64("rps", defaultRPS, "Flow start rate, 0 for unpaced")
		grant       = flag.Float64("grant", defaultGrantRatio, "Share of subjects that grant precise location")
		delay       = flag.Duration("delay", 0, "Presentation delay before each redirect")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed        = flag.Uint64("seed", defaultSeed, "Seed for the simulated subjects")
		logFile     = flag.String("log", "", "Also write logs to this file")
		verbose     = flag.Bool("verbose", false, "Log every flow outcome")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closer, err := simulate.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)

	config := &simulate.Config{
		BaseURL:           *baseURL,
		LookupURL:         *lookupURL,
		Flows:             *flows,
		Concurrency:       *concurrency,
		RPS:               *rps,
		GrantRatio:        *grant,
		PresentationDelay: *delay,
		Timeout:           *timeout,
		Seed:              *seed,
		Verbose:           *verbose,
	}

	_, err = simulate.Run(ctx, config)
	cancel()
	stop()
	_ = logger.Sync()
	_ = closer.Close()
	if err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
