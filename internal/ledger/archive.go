package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"agroledger/internal/blob"
)

// StateExporter is satisfied by every store built on MemoryStore.
type StateExporter interface {
	ExportState() Snapshot
}

// archiveVersion tags the snapshot envelope layout.
const archiveVersion = 1

// ArchiveEnvelope wraps an exported snapshot with provenance metadata.
type ArchiveEnvelope struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Snapshot  Snapshot  `json:"snapshot"`
}

// ExportSnapshot writes a versioned JSON snapshot of the full ledger state
// to the blob store under snapshots/<timestamp>-<uuid>.json. Keys embed a
// random suffix so rapid exports never collide, and the create-only Put
// keeps every archived snapshot immutable.
func ExportSnapshot(ctx context.Context, exp StateExporter, store blob.Store) (blob.Info, error) {
	env := ArchiveEnvelope{
		Version:   archiveVersion,
		CreatedAt: time.Now().UTC(),
		Snapshot:  exp.ExportState(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode snapshot: %w", err)
	}
	key := fmt.Sprintf("snapshots/%s-%s.json", env.CreatedAt.Format("20060102T150405Z"), uuid.NewString())
	return store.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"readings":    strconv.Itoa(len(env.Snapshot.Readings)),
			"crop_events": strconv.Itoa(len(env.Snapshot.Events)),
			"stages":      strconv.Itoa(len(env.Snapshot.Stages)),
		},
	})
}

// ReadArchivedSnapshot fetches and decodes an archived snapshot by key.
func ReadArchivedSnapshot(ctx context.Context, store blob.Store, key string) (ArchiveEnvelope, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return ArchiveEnvelope{}, err
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return ArchiveEnvelope{}, err
	}
	var env ArchiveEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ArchiveEnvelope{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	if env.Version != archiveVersion {
		return ArchiveEnvelope{}, fmt.Errorf("snapshot %s: unsupported version %d", key, env.Version)
	}
	return env, nil
}
