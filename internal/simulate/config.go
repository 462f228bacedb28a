package simulate

import (
	"errors"
	"time"
)

// Errors returned by Run.
var (
	ErrInvalidConfig = errors.New("invalid simulation config")
	ErrUnhealthy     = errors.New("service health check failed")
	ErrVerification  = errors.New("server counts do not match submitted flows")
)

// Config holds configuration for a simulation run
type Config struct {
	BaseURL           string        // Base URL of the capture service
	LookupURL         string        // Coarse lookup provider; synthetic results when empty
	Flows             int           // Number of subject flows to run
	Concurrency       int           // Flows running at once
	RPS               float64       // Flow start rate; 0 means unpaced
	GrantRatio        float64       // Share of flows that grant precise location
	PresentationDelay time.Duration // Pause before each flow redirects
	Timeout           time.Duration // HTTP request timeout
	Seed              uint64        // Seed for the simulated subjects
	Verbose           bool          // Log every flow outcome
}

func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("base url is required"))
	case c.Flows <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("flows must be positive"))
	case c.Concurrency <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("concurrency must be positive"))
	case c.RPS < 0:
		return errors.Join(ErrInvalidConfig, errors.New("rps must not be negative"))
	case c.GrantRatio < 0 || c.GrantRatio > 1:
		return errors.Join(ErrInvalidConfig, errors.New("grant ratio must be within [0,1]"))
	case c.PresentationDelay < 0:
		return errors.Join(ErrInvalidConfig, errors.New("presentation delay must not be negative"))
	}
	return nil
}

// Counts mirrors the summary fields served by GET /stats.
type Counts struct {
	Total        int     `json:"total"`
	CoarseCount  int     `json:"coarse_count"`
	PreciseCount int     `json:"precise_count"`
	DeniedCount  int     `json:"denied_count"`
	SuccessRate  float64 `json:"success_rate"`
}

// Stats holds simulation statistics
type Stats struct {
	FlowsStarted   int
	FlowsCompleted int
	FlowsCancelled int
	Granted        int
	Denied         int
	LookupFailures int

	CoarseAccepted  int
	PreciseAccepted int
	DeniedLogged    int
	SubmitFailures  int

	Before    Counts
	After     Counts
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
