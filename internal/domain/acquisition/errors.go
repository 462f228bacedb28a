package acquisition

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel kinds for acquisition errors. None of them reach the subject;
// lookup failures are swallowed and capability failures become denials.
var (
	ErrLookupUnavailable     = errors.New("coarse lookup unavailable")
	ErrCapabilityDenied      = errors.New("precise capability denied")
	ErrCapabilityUnavailable = errors.New("precise position unavailable")
	ErrCapabilityTimeout     = errors.New("precise capability timed out")
	ErrAlreadyStarted        = errors.New("flow already started")
	ErrMissingCollaborator   = errors.New("flow collaborator missing")
)

// Capability error codes as reported by the host location capability.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// CapabilityError is a failed precise position request.
type CapabilityError struct {
	Code    int
	Message string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability error %d: %s", e.Code, e.Message)
}

// Unwrap maps the code to its sentinel.
func (e *CapabilityError) Unwrap() error {
	switch e.Code {
	case CodePermissionDenied:
		return ErrCapabilityDenied
	case CodeTimeout:
		return ErrCapabilityTimeout
	default:
		return ErrCapabilityUnavailable
	}
}

// AsCapabilityError normalizes any capability failure. Deadline errors map
// to the timeout code and anything unrecognised to position unavailable.
func AsCapabilityError(err error) *CapabilityError {
	if err == nil {
		return nil
	}
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, ErrCapabilityTimeout), errors.Is(err, context.DeadlineExceeded):
		return &CapabilityError{Code: CodeTimeout, Message: "Timeout expired"}
	case errors.Is(err, ErrCapabilityDenied):
		return &CapabilityError{Code: CodePermissionDenied, Message: "User denied Geolocation"}
	}
	return &CapabilityError{Code: CodePositionUnavailable, Message: err.Error()}
}
