package repository

import "errors"

// Sentinel kinds for event log errors.
var (
	ErrClosed       = errors.New("event log closed")
	ErrInvalidEvent = errors.New("invalid event")
)
