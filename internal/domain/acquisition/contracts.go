package acquisition

import (
	"context"
	"time"

	"github.com/okian/geocapture/internal/domain/model"
)

// LookupResult is the coarse lookup contract. Only the coordinates are
// required; every other field may be empty.
type LookupResult struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	City        string  `json:"city"`
	Region      string  `json:"region"`
	CountryName string  `json:"country_name"`
	IP          string  `json:"ip"`
	Org         string  `json:"org"`
	Postal      string  `json:"postal"`
	Timezone    string  `json:"timezone"`
}

// CoarseLookup resolves the subject's network address to a rough position.
type CoarseLookup interface {
	Lookup(ctx context.Context) (LookupResult, error)
}

// PositionOptions configures a precise position request.
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// Position is a precise fix. Optional kinematics are nil when unknown.
type Position struct {
	Latitude         float64
	Longitude        float64
	Accuracy         float64
	Altitude         *float64
	AltitudeAccuracy *float64
	Heading          *float64
	Speed            *float64
	Timestamp        time.Time
}

// PreciseCapability is the consent-gated host positioning capability.
// Failures should be *CapabilityError; other errors are normalized.
type PreciseCapability interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

// Submitter delivers one flow payload to the ingestion boundary.
type Submitter interface {
	Submit(ctx context.Context, kind model.Kind, payload map[string]any) error
}

// Redirector sends the subject onward once the flow completes.
type Redirector interface {
	Redirect(ctx context.Context, url string) error
}

// ClientInfo is the metadata a browser attaches to every payload.
type ClientInfo struct {
	UserAgent string
	Platform  string
	Language  string
	Screen    string
}
