package simulate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/geocapture/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging initializes the logger. When logFile is set, output goes to
// both stdout and that file. The returned closer releases the file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		if err := logger.SetLevelString("debug"); err != nil {
			return nil, err
		}
	}
	if logFile == "" {
		return io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.SetOutput(io.MultiWriter(os.Stdout, file)); err != nil {
		_ = file.Close()
		return nil, err
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Capture Flow Simulator
======================

Runs simulated subjects through the two-phase capture flow against a
running server, then checks that the server's counts grew by exactly what
it acknowledged.

Usage:
  go run ./cmd/capture-sim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -lookup string
        Coarse lookup provider URL (default: synthetic results)
  -flows int
        Number of flows to run (default 200)
  -concurrency int
        Flows running at once (default CPU cores * 2)
  -rps float
        Flow start rate, 0 for unpaced (default 50)
  -grant float
        Share of subjects that grant precise location (default 0.5)
  -delay duration
        Presentation delay before each redirect (default 0s)
  -timeout duration
        HTTP request timeout (default 10s)
  -seed uint
        Seed for the simulated subjects (default 1)
  -log string
        Also write logs to this file
  -verbose
        Log every flow outcome
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run ./cmd/capture-sim

  # Most subjects decline the prompt
  go run ./cmd/capture-sim -flows 1000 -grant 0.1 -rps 0

  # Subjects keep distinct origins only if the server trusts this host, e.g.
  # GEOCAPTURE_TRUSTED_PROXIES=127.0.0.1 on the server

  # Use the real lookup provider
  go run ./cmd/capture-sim -flows 20 -lookup https://ipapi.co/json/
`)
}
