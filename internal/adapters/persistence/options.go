package persistence

import (
	"os"

	"github.com/okian/geocapture/pkg/logger"
)

// Option configures a FileWriter.
type Option func(*FileWriter)

// WithLogger sets the logger used for write diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(w *FileWriter) {
		if l != nil {
			w.log = l
		}
	}
}

// WithFileMode sets the permissions of the written artifact.
func WithFileMode(mode os.FileMode) Option {
	return func(w *FileWriter) {
		w.mode = mode
	}
}

// WithIndent sets the JSON indent. An empty indent writes compact JSON.
func WithIndent(indent string) Option {
	return func(w *FileWriter) {
		w.indent = indent
	}
}
