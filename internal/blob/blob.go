// Package blob stores binary payloads referenced from canonical values.
//
// Blobs are content addressed: the id of a payload is ir.BlobID(data), so
// storing the same bytes twice is a no-op. Payloads and their metadata live
// in an embedded BadgerDB under separate key prefixes.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/provenant/internal/ir"
)

// ErrNotFound is returned by Get when no blob has the requested id.
var ErrNotFound = errors.New("blob not found")

const (
	dataPrefix = "blob/data/"
	metaPrefix = "blob/meta/"
)

// Config holds configuration for a blob store.
type Config struct {
	// Dir is the directory for BadgerDB files. Ignored when InMemory is true.
	Dir string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// Meta describes a stored payload.
type Meta struct {
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a content-addressed blob store. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

// Open opens the blob store described by cfg, creating the directory if
// needed.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("blob: dir is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("blob: create directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("blob: open badger: %w", err)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// OpenInMemory opens a store that is discarded on Close.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores data and returns its content address. Storing bytes that are
// already present keeps the original metadata.
func (s *Store) Put(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := ir.BlobID(data)
	meta, err := json.Marshal(Meta{
		MimeType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("blob: encode meta: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(metaPrefix + id))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set([]byte(dataPrefix+id), data); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+id), meta)
	})
	if err != nil {
		return "", fmt.Errorf("blob: put %s: %w", id, err)
	}

	s.logger.Debug("blob stored", "blob_id", id, "size", len(data), "mime_type", mimeType)
	return id, nil
}

// Get returns the payload and metadata stored under id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) ([]byte, Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, Meta{}, err
	}

	var (
		data []byte
		meta Meta
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + id))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("decode meta: %w", err)
		}

		item, err = txn.Get([]byte(dataPrefix + id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, Meta{}, fmt.Errorf("blob %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, Meta{}, fmt.Errorf("blob: get %s: %w", id, err)
	}
	return data, meta, nil
}

// Has reports whether a blob with id is stored.
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	_, _, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
