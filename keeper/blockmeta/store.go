// Package blockmeta persists the cluster slot-production record the
// keeper accumulates between ticks, in a local SQLite database
// (github.com/mattn/go-sqlite3 via database/sql). The slot-history
// sysvar only retains a trailing window of slots, so the keeper caches
// every slot it has already scanned locally; this store is that cache
// and doubles as history.SlotBitmap for a window wider than the sysvar
// retains.
package blockmeta

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a mutex-guarded SQLite-backed slot-production cache, safe for
// concurrent use from the keeper's single scheduling goroutine and any
// read-only reporting callers.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates (if necessary) and opens the SQLite database at path,
// ensuring the slots table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("blockmeta: open %s: %w", path, err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS slots (
		slot     INTEGER PRIMARY KEY,
		produced INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("blockmeta: create schema: %w", err)
	}
	const entrySchema = `CREATE TABLE IF NOT EXISTS history_entries (
		vote_account BLOB PRIMARY KEY,
		data         BLOB NOT NULL
	)`
	if _, err := db.Exec(entrySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("blockmeta: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// RecordSlot upserts whether slot produced a confirmed block.
func (s *Store) RecordSlot(slot uint64, produced bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p int
	if produced {
		p = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO slots (slot, produced) VALUES (?, ?)
		 ON CONFLICT(slot) DO UPDATE SET produced = excluded.produced`,
		int64(slot), p,
	)
	if err != nil {
		return fmt.Errorf("blockmeta: record slot %d: %w", slot, err)
	}
	return nil
}

// Contains implements history.SlotBitmap: reports whether slot has ever
// been recorded.
func (s *Store) Contains(slot uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dummy int
	err := s.db.QueryRow(`SELECT 1 FROM slots WHERE slot = ?`, int64(slot)).Scan(&dummy)
	return err == nil
}

// IsSet implements history.SlotBitmap: reports whether slot produced a
// confirmed block. Only meaningful when Contains(slot) is true.
func (s *Store) IsSet(slot uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var produced int
	err := s.db.QueryRow(`SELECT produced FROM slots WHERE slot = ?`, int64(slot)).Scan(&produced)
	if err != nil {
		return false
	}
	return produced != 0
}

// LatestSlot returns the highest slot number recorded, and false if the
// store is empty.
func (s *Store) LatestSlot() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var slot sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(slot) FROM slots`).Scan(&slot); err != nil || !slot.Valid {
		return 0, false
	}
	return uint64(slot.Int64), true
}

// SaveHistoryEntry upserts a validator's latest packed on-chain history
// entry (opaque bytes; encoding is the caller's concern), so a restart can
// resume without re-deriving every feed from the cluster.
func (s *Store) SaveHistoryEntry(voteAccount [32]byte, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO history_entries (vote_account, data) VALUES (?, ?)
		 ON CONFLICT(vote_account) DO UPDATE SET data = excluded.data`,
		voteAccount[:], data,
	)
	if err != nil {
		return fmt.Errorf("blockmeta: save history entry: %w", err)
	}
	return nil
}

// LoadHistoryEntries returns every checkpointed validator's latest packed
// entry bytes, keyed by vote account.
func (s *Store) LoadHistoryEntries() (map[[32]byte][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT vote_account, data FROM history_entries`)
	if err != nil {
		return nil, fmt.Errorf("blockmeta: load history entries: %w", err)
	}
	defer rows.Close()

	out := make(map[[32]byte][]byte)
	for rows.Next() {
		var voteAccount, data []byte
		if err := rows.Scan(&voteAccount, &data); err != nil {
			return nil, fmt.Errorf("blockmeta: scan history entry: %w", err)
		}
		var key [32]byte
		copy(key[:], voteAccount)
		out[key] = data
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("blockmeta: iterate history entries: %w", err)
	}
	return out, nil
}
