package service

import "errors"

var (
	// ErrNotStarted is returned by Submit before Start or after Stop.
	ErrNotStarted = errors.New("capture service not started")
	// ErrStart wraps failures while building the service components.
	ErrStart = errors.New("start capture service")
)
