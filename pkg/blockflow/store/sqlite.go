package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists snapshots as blobs in one SQLite table.
//
// Each row carries the snapshot size and save time next to the blob, so
// List never reads snapshot bytes. Sequence numbers are assigned in
// process and continue after the highest stored one on open.
type SQLiteStore struct {
	db     *sql.DB
	save   *sql.Stmt
	load   *sql.Stmt
	del    *sql.Stmt
	mu     sync.RWMutex
	seq    int64
	closed bool
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS block_snapshots (
	run_id   TEXT    NOT NULL,
	block_id TEXT    NOT NULL,
	seq      INTEGER NOT NULL,
	saved_at INTEGER NOT NULL,
	size     INTEGER NOT NULL,
	data     BLOB    NOT NULL,
	PRIMARY KEY (run_id, block_id)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS block_snapshots_run_seq ON block_snapshots (run_id, seq);
`

// NewSQLiteStore opens (or creates) a SQLite store at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		s.closeStatements()
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM block_snapshots`).Scan(&s.seq); err != nil {
		return fmt.Errorf("load sequence: %w", err)
	}

	var err error
	if s.save, err = s.db.Prepare(`
		INSERT INTO block_snapshots (run_id, block_id, seq, saved_at, size, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, block_id) DO UPDATE SET
			seq = excluded.seq,
			saved_at = excluded.saved_at,
			size = excluded.size,
			data = excluded.data
	`); err != nil {
		return fmt.Errorf("prepare save: %w", err)
	}
	if s.load, err = s.db.Prepare(`SELECT data FROM block_snapshots WHERE run_id = ? AND block_id = ?`); err != nil {
		return fmt.Errorf("prepare load: %w", err)
	}
	if s.del, err = s.db.Prepare(`DELETE FROM block_snapshots WHERE run_id = ? AND block_id = ?`); err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) closeStatements() {
	for _, stmt := range []*sql.Stmt{s.save, s.load, s.del} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// Save implements Store.
func (s *SQLiteStore) Save(runID, blockID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if data == nil {
		data = []byte{}
	}
	seq := s.seq + 1
	if _, err := s.save.Exec(runID, blockID, seq, time.Now().UnixNano(), len(data), data); err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", runID, blockID, err)
	}
	s.seq = seq
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(runID, blockID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	var data []byte
	err := s.load.QueryRow(runID, blockID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s/%s: %w", runID, blockID, err)
	}
	return data, nil
}

// List implements Store.
func (s *SQLiteStore) List(runID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(`
		SELECT block_id, seq, saved_at, size FROM block_snapshots
		WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		info := Info{RunID: runID}
		var savedAt int64
		if err := rows.Scan(&info.BlockID, &info.Sequence, &savedAt, &info.Size); err != nil {
			return nil, fmt.Errorf("scan snapshot info: %w", err)
		}
		info.Timestamp = time.Unix(0, savedAt).UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(runID, blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.del.Exec(runID, blockID); err != nil {
		return fmt.Errorf("delete snapshot %s/%s: %w", runID, blockID, err)
	}
	return nil
}

// DeleteRun implements Store.
func (s *SQLiteStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec(`DELETE FROM block_snapshots WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.closeStatements()
	return s.db.Close()
}
