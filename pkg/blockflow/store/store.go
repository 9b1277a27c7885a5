// Package store persists evicted block contents so a runtime can restore
// them later, possibly at a different address.
package store

import (
	"errors"
	"fmt"
	"time"
)

// Store persists block snapshots, grouped by run.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the snapshot of a block. Overwrites an existing one.
	Save(runID, blockID string, data []byte) error

	// Load retrieves a snapshot.
	// Returns ErrNotFound if it doesn't exist.
	Load(runID, blockID string) ([]byte, error)

	// List returns the snapshots of a run, oldest first.
	// Returns empty slice (not error) if the run has none.
	List(runID string) ([]Info, error)

	// Delete removes a snapshot.
	// Returns nil if it doesn't exist.
	Delete(runID, blockID string) error

	// DeleteRun removes every snapshot of a run.
	DeleteRun(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading the snapshot.
type Info struct {
	RunID     string
	BlockID   string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a snapshot doesn't exist.
	ErrNotFound = errors.New("snapshot not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("snapshot store closed")

	// ErrUnknownKind indicates a store kind Open does not know.
	ErrUnknownKind = errors.New("unknown store kind")
)

// Store kinds accepted by Open.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
	KindPebble = "pebble"
)

// Open creates a store by kind. path is the SQLite file or the Pebble
// directory and is ignored for the memory store.
func Open(kind, path string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteStore(path)
	case KindPebble:
		if path == "" {
			return nil, fmt.Errorf("pebble store: path is required")
		}
		return NewPebbleStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
