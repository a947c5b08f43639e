// Package postgres provides a Postgres-backed persistent ledger store that
// mirrors the in-memory semantics, snapshotting state as JSONB per bucket.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"agroledger/internal/ledger"
	"agroledger/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/agroledger?sslmode=disable"
)

// sqlOpen is a hook for tests.
var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory
// implementation for transactions.
type Store struct {
	*ledger.MemoryStore
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the snapshot table exists, and hydrates the
// in-memory store from any existing snapshot.
func NewStore(dsn string, deployer domain.Identity) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ledger_state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	mem := ledger.NewMemoryStore(deployer)
	snap, loaded, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	if loaded {
		mem.ImportState(snap)
	}
	return &Store{MemoryStore: mem, db: db}, nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (ledger.Snapshot, bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM ledger_state`)
	if err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snap ledger.Snapshot
	loaded := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return ledger.Snapshot{}, false, fmt.Errorf("scan: %w", err)
		}
		var dst any
		switch bucket {
		case "readings":
			dst = &snap.Readings
		case "crop_events":
			dst = &snap.Events
		case "stages":
			dst = &snap.Stages
		case "roles":
			dst = &snap.Roles
		case "cooldowns":
			dst = &snap.Cooldowns
		case "hashes":
			dst = &snap.Hashes
		case "paused":
			dst = &snap.Paused
		default:
			continue
		}
		if err := json.Unmarshal(payload, dst); err != nil {
			return ledger.Snapshot{}, false, fmt.Errorf("decode %s: %w", bucket, err)
		}
		loaded = true
	}
	if err := rows.Err(); err != nil {
		return ledger.Snapshot{}, false, fmt.Errorf("iterate state: %w", err)
	}
	return snap, loaded, nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for bucket, src := range map[string]any{
		"readings":    snap.Readings,
		"crop_events": snap.Events,
		"stages":      snap.Stages,
		"roles":       snap.Roles,
		"cooldowns":   snap.Cooldowns,
		"hashes":      snap.Hashes,
		"paused":      snap.Paused,
	} {
		data, err := json.Marshal(src)
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO ledger_state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
			bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn atomically in memory, then snapshots to
// Postgres if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := s.MemoryStore.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	return s.persist(ctx)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
