// Package sqlite provides a SQLite-backed persistent ledger store. It
// reuses the in-memory transactional semantics and snapshots the full state
// as JSON blobs after every successful transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"agroledger/internal/ledger"
	"agroledger/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists ledger state to a single SQLite table keyed by bucket.
type Store struct {
	*ledger.MemoryStore
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates the
// in-memory store from any existing snapshot. When the database is empty
// the deploying identity is seeded as Administrator.
func NewStore(path string, deployer domain.Identity) (*Store, error) {
	if path == "" {
		path = "agroledger.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ledger_state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{MemoryStore: ledger.NewMemoryStore(deployer), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	bucketReadings  = "readings"
	bucketEvents    = "crop_events"
	bucketStages    = "stages"
	bucketRoles     = "roles"
	bucketCooldowns = "cooldowns"
	bucketHashes    = "hashes"
	bucketPaused    = "paused"
)

var buckets = []string{bucketReadings, bucketEvents, bucketStages, bucketRoles, bucketCooldowns, bucketHashes, bucketPaused}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM ledger_state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	payloads := map[string][]byte{}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		payloads[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(payloads) == 0 {
		return nil
	}

	var snap ledger.Snapshot
	for bucket, payload := range payloads {
		var dst any
		switch bucket {
		case bucketReadings:
			dst = &snap.Readings
		case bucketEvents:
			dst = &snap.Events
		case bucketStages:
			dst = &snap.Stages
		case bucketRoles:
			dst = &snap.Roles
		case bucketCooldowns:
			dst = &snap.Cooldowns
		case bucketHashes:
			dst = &snap.Hashes
		case bucketPaused:
			dst = &snap.Paused
		default:
			continue
		}
		if err := json.Unmarshal(payload, dst); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	s.ImportState(snap)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		var src any
		switch bucket {
		case bucketReadings:
			src = snap.Readings
		case bucketEvents:
			src = snap.Events
		case bucketStages:
			src = snap.Stages
		case bucketRoles:
			src = snap.Roles
		case bucketCooldowns:
			src = snap.Cooldowns
		case bucketHashes:
			src = snap.Hashes
		case bucketPaused:
			src = snap.Paused
		}
		data, err := json.Marshal(src)
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO ledger_state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn atomically in memory, then snapshots state to
// SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := s.MemoryStore.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	return s.persist()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
