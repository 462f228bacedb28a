// Package acquisition drives one subject's two-phase capture flow.
//
// Coarse lookup starts as soon as the flow runs. Precise capture is only
// attempted after an explicit trigger, and its outcome (granted or denied)
// is always submitted before the flow redirects onward.
package acquisition

import "time"

// State of a capture flow.
type State int32

// Flow states.
const (
	StateIdle State = iota
	StateCoarseRequested
	StateCoarseComplete
	StateAwaitingConsentAction
	StatePreciseGranted
	StatePreciseDenied
	// StateCoarseOnly ends a flow that was cancelled before the precise
	// request resolved. It is not logged anywhere.
	StateCoarseOnly
)

var stateNames = [...]string{
	StateIdle:                  "idle",
	StateCoarseRequested:       "coarse_requested",
	StateCoarseComplete:        "coarse_complete",
	StateAwaitingConsentAction: "awaiting_consent_action",
	StatePreciseGranted:        "precise_granted",
	StatePreciseDenied:         "precise_denied",
	StateCoarseOnly:            "coarse_only",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StatePreciseGranted || s == StatePreciseDenied || s == StateCoarseOnly
}

// Flow constants. The precise request settings are not configurable.
const (
	PreciseTimeout           = 15 * time.Second
	PreciseMaximumAge        = time.Duration(0)
	PreciseHighAccuracy      = true
	DefaultPresentationDelay = 1500 * time.Millisecond
	DefaultRedirectURL       = "https://www.google.com"
)
