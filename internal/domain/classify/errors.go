package classify

import (
	"errors"
	"fmt"

	"github.com/okian/geocapture/internal/domain/model"
)

// ErrMalformedEvent marks payloads rejected before append.
var ErrMalformedEvent = errors.New("malformed event")

// MalformedError describes which field failed validation.
type MalformedError struct {
	Kind   model.Kind
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s: %s", ErrMalformedEvent, e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s %s", ErrMalformedEvent, e.Kind, e.Field, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedEvent }

func malformed(kind model.Kind, field, reason string) error {
	return &MalformedError{Kind: kind, Field: field, Reason: reason}
}
