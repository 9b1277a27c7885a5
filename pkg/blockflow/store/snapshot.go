package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the current snapshot format version.
const Version = 1

// Snapshot is the persisted form of an evicted block.
type Snapshot struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	BlockID   string    `json:"block_id"`
	Timestamp time.Time `json:"timestamp"`

	// Size is the block size as requested at creation. Data may be longer
	// because blocks are word-aligned.
	Size uint64 `json:"size"`
	Data []byte `json:"data"`
}

// NewSnapshot captures data as the contents of block blockID.
func NewSnapshot(runID, blockID string, size uint64, data []byte) *Snapshot {
	return &Snapshot{
		Version:   Version,
		RunID:     runID,
		BlockID:   blockID,
		Timestamp: time.Now().UTC(),
		Size:      size,
		Data:      data,
	}
}

// Marshal serializes a snapshot to JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal deserializes a snapshot from JSON.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Version != Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	return &s, nil
}
