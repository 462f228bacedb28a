package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/okian/geocapture/internal/domain/model"
	"github.com/okian/geocapture/pkg/logger"
)

const archivePrefix = "event:"

var errArchiveClosed = fmt.Errorf("%w: archive closed", ErrPersistence)

// Archive keeps every event in a Badger database, one key per event, so the
// history survives restarts that overwrite the JSON artifact. Keys sort by
// receive time and then event ID.
type Archive struct {
	mu       sync.Mutex
	db       *badger.DB
	path     string
	archived int
	log      logger.Logger
}

// ArchiveOption configures an Archive.
type ArchiveOption func(*Archive)

// WithArchiveLogger sets the logger used for archive diagnostics.
func WithArchiveLogger(l logger.Logger) ArchiveOption {
	return func(a *Archive) {
		if l != nil {
			a.log = l
		}
	}
}

// OpenArchive opens or creates the archive directory at path.
func OpenArchive(path string, opts ...ArchiveOption) (*Archive, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty archive path", ErrPersistence)
	}
	a := &Archive{path: path, log: logger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("%w: open archive %s: %v", ErrPersistence, path, err)
	}
	a.db = db
	return a, nil
}

// Path returns the archive directory.
func (a *Archive) Path() string { return a.path }

func archiveKey(ev *model.CaptureEvent) []byte {
	return fmt.Appendf(nil, "%s%020d:%s", archivePrefix, ev.ReceivedAt.UnixNano(), ev.ID)
}

// Flush stores the events not yet archived by this process. The log only
// grows, so events[:n] from an earlier successful flush are skipped; a
// failed flush is retried in full by the next one.
func (a *Archive) Flush(ctx context.Context, events []model.CaptureEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db == nil {
		return errArchiveClosed
	}
	if a.archived > len(events) {
		a.archived = 0
	}
	pending := events[a.archived:]
	if len(pending) == 0 {
		return nil
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		for i := range pending {
			val, err := json.Marshal(&pending[i])
			if err != nil {
				return fmt.Errorf("encode event %d: %w", pending[i].Seq, err)
			}
			if err := txn.Set(archiveKey(&pending[i]), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		a.log.Warn(ctx, "archive write failed",
			logger.String("path", a.path),
			logger.Int("pending", len(pending)),
			logger.Error(err))
		return fmt.Errorf("%w: archive: %v", ErrPersistence, err)
	}
	a.archived = len(events)
	return nil
}

// Events returns every archived event, oldest first.
func (a *Archive) Events(_ context.Context) ([]model.CaptureEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil, errArchiveClosed
	}

	var out []model.CaptureEvent
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(archivePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var ev model.CaptureEvent
				if err := json.Unmarshal(val, &ev); err != nil {
					return err
				}
				out = append(out, ev)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read archive: %v", ErrPersistence, err)
	}
	return out, nil
}

// Close releases the database.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
