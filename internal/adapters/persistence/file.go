// Package persistence writes the event log to a single JSON artifact.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/geocapture/internal/domain/model"
	"github.com/okian/geocapture/pkg/logger"
	"github.com/okian/geocapture/pkg/metrics"
)

const (
	defaultFileMode = 0o644
	defaultIndent   = "  "
)

// FileWriter overwrites one artifact with the full log on every flush.
//
// Each flush writes a temp file in the artifact's directory, syncs it and
// renames it over the artifact, so readers see either the previous or the
// new log, never a partial write.
type FileWriter struct {
	path   string
	mode   os.FileMode
	indent string
	log    logger.Logger
}

// NewFileWriter creates a writer for path. The parent directory is created
// if missing.
func NewFileWriter(path string, opts ...Option) (*FileWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty artifact path", ErrPersistence)
	}
	w := &FileWriter{
		path:   path,
		mode:   defaultFileMode,
		indent: defaultIndent,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create artifact directory %s: %v", ErrPersistence, dir, err)
		}
	}
	return w, nil
}

// Path returns the artifact location.
func (w *FileWriter) Path() string { return w.path }

// Flush serializes events as a JSON array and replaces the artifact.
func (w *FileWriter) Flush(ctx context.Context, events []model.CaptureEvent) error {
	if events == nil {
		events = []model.CaptureEvent{}
	}

	var (
		data []byte
		err  error
	)
	if w.indent == "" {
		data, err = json.Marshal(events)
	} else {
		data, err = json.MarshalIndent(events, "", w.indent)
	}
	if err != nil {
		return fmt.Errorf("%w: encode log: %v", ErrPersistence, err)
	}

	if err := w.replace(data); err != nil {
		w.log.Warn(ctx, "artifact write failed",
			logger.String("path", w.path),
			logger.Int("events", len(events)),
			logger.Error(err))
		return err
	}

	metrics.UpdateArtifactBytes(len(data))
	w.log.Debug(ctx, "artifact written",
		logger.String("path", w.path),
		logger.Int("events", len(events)),
		logger.Int("bytes", len(data)))
	return nil
}

func (w *FileWriter) replace(data []byte) (err error) {
	dir, base := filepath.Split(w.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write temp file: %v", ErrPersistence, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync temp file: %v", ErrPersistence, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", ErrPersistence, err)
	}
	if err = os.Chmod(tmpName, w.mode); err != nil {
		return fmt.Errorf("%w: chmod temp file: %v", ErrPersistence, err)
	}
	if err = os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("%w: rename into place: %v", ErrPersistence, err)
	}
	return nil
}

// ReadArtifact decodes an artifact written by FileWriter. A missing file
// yields an error wrapping os.ErrNotExist.
func ReadArtifact(path string) ([]model.CaptureEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		return nil, fmt.Errorf("%w: read artifact: %v", ErrPersistence, err)
	}
	var events []model.CaptureEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("%w: decode artifact: %v", ErrPersistence, err)
	}
	return events, nil
}
