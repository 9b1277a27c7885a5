package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// PebbleStore persists snapshots in a Pebble key-value database.
//
// Keys are "block/<runID>/<blockID>". Values carry a 16-byte header
// [sequence:8][unix nanos:8] ahead of the snapshot bytes.
type PebbleStore struct {
	db     *pebble.DB
	mu     sync.RWMutex
	seq    uint64
	closed bool
}

const pebbleHeader = 16

// NewPebbleStore opens (or creates) a Pebble database in dir.
func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	s := &PebbleStore{db: db}
	if err := s.loadSequence(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// loadSequence continues numbering after the highest stored sequence.
func (s *PebbleStore) loadSequence() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("block/"),
		UpperBound: []byte("block0"),
	})
	if err != nil {
		return fmt.Errorf("scan snapshots: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if v := iter.Value(); len(v) >= pebbleHeader {
			if seq := binary.BigEndian.Uint64(v[:8]); seq > s.seq {
				s.seq = seq
			}
		}
	}
	return iter.Error()
}

func pebbleKey(runID, blockID string) []byte {
	return []byte("block/" + runID + "/" + blockID)
}

// runBounds returns the key range holding every snapshot of runID.
func runBounds(runID string) (lower, upper []byte) {
	prefix := "block/" + runID + "/"
	return []byte(prefix), []byte("block/" + runID + "0")
}

// Save implements Store.
func (s *PebbleStore) Save(runID, blockID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.seq++
	buf := make([]byte, pebbleHeader+len(data))
	binary.BigEndian.PutUint64(buf[0:8], s.seq)
	binary.BigEndian.PutUint64(buf[8:16], uint64(time.Now().UnixNano()))
	copy(buf[pebbleHeader:], data)

	if err := s.db.Set(pebbleKey(runID, blockID), buf, pebble.Sync); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PebbleStore) Load(runID, blockID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	val, closer, err := s.db.Get(pebbleKey(runID, blockID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer closer.Close()

	if len(val) < pebbleHeader {
		return nil, fmt.Errorf("load snapshot: truncated record (%d bytes)", len(val))
	}
	return append([]byte(nil), val[pebbleHeader:]...), nil
}

// List implements Store.
func (s *PebbleStore) List(runID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	lower, upper := runBounds(runID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer iter.Close()

	var infos []Info
	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) < pebbleHeader {
			continue
		}
		infos = append(infos, Info{
			RunID:     runID,
			BlockID:   strings.TrimPrefix(string(iter.Key()), string(lower)),
			Sequence:  int(binary.BigEndian.Uint64(val[0:8])),
			Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(val[8:16]))).UTC(),
			Size:      int64(len(val) - pebbleHeader),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Sequence < infos[j].Sequence
	})
	return infos, nil
}

// Delete implements Store.
func (s *PebbleStore) Delete(runID, blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := s.db.Delete(pebbleKey(runID, blockID), pebble.Sync); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// DeleteRun implements Store.
func (s *PebbleStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	lower, upper := runBounds(runID)
	if err := s.db.DeleteRange(lower, upper, pebble.Sync); err != nil {
		return fmt.Errorf("delete run snapshots: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
