package persistence

import "errors"

// ErrPersistence wraps every artifact write or read failure.
var ErrPersistence = errors.New("persistence failure")
