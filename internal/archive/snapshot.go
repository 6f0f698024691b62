package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"distributor/internal/blob"
	"distributor/internal/infra/persistence/memory"
	"distributor/internal/metrics"
)

// ErrNoSnapshot is returned when the archive holds no ledger snapshot.
var ErrNoSnapshot = errors.New("archive: no snapshot")

// Exporter produces a point-in-time copy of the ledger. Every persistence
// backend satisfies it through the embedded memory store.
type Exporter interface {
	ExportState() memory.Snapshot
}

// Importer replaces the ledger with a snapshot.
type Importer interface {
	ImportState(memory.Snapshot)
}

// SnapshotKey names a snapshot taken at height. Keys sort by height, then by
// wall time.
func SnapshotKey(snap memory.Snapshot, at time.Time) string {
	return fmt.Sprintf("%s%010d-%s.json", snapshotsPrefix, snap.Height, at.UTC().Format("20060102T150405.000Z"))
}

// ExportSnapshot writes the current ledger of src to store.
func ExportSnapshot(ctx context.Context, store blob.Store, src Exporter, at time.Time) (blob.Info, error) {
	snap := src.ExportState()
	payload, err := json.Marshal(snap)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode snapshot: %w", err)
	}
	info, err := store.Put(ctx, SnapshotKey(snap, at), bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentTypeJSON,
		Metadata: map[string]string{
			"height":   strconv.FormatUint(uint64(snap.Height), 10),
			"durable":  strconv.Itoa(len(snap.Durable)),
			"expiring": strconv.Itoa(len(snap.Expiring)),
		},
	})
	metrics.RecordArchiveWrite("snapshot", err)
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive snapshot: %w", err)
	}
	return info, nil
}

// ListSnapshots returns the archived snapshots, oldest first.
func ListSnapshots(ctx context.Context, store blob.Store) ([]blob.Info, error) {
	infos, err := store.List(ctx, snapshotsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// LoadSnapshot reads the snapshot stored at key.
func LoadSnapshot(ctx context.Context, store blob.Store, key string) (memory.Snapshot, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	var snap memory.Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return memory.Snapshot{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return snap, nil
}

// LatestSnapshot loads the most recent snapshot.
func LatestSnapshot(ctx context.Context, store blob.Store) (string, memory.Snapshot, error) {
	infos, err := ListSnapshots(ctx, store)
	if err != nil {
		return "", memory.Snapshot{}, err
	}
	if len(infos) == 0 {
		return "", memory.Snapshot{}, ErrNoSnapshot
	}
	key := infos[len(infos)-1].Key
	snap, err := LoadSnapshot(ctx, store, key)
	return key, snap, err
}

// RestoreLatest hydrates dst from the most recent snapshot and returns its key.
func RestoreLatest(ctx context.Context, store blob.Store, dst Importer) (string, error) {
	key, snap, err := LatestSnapshot(ctx, store)
	if err != nil {
		return "", err
	}
	dst.ImportState(snap)
	return key, nil
}

// PruneSnapshots deletes all but the newest keep snapshots and reports how
// many were removed.
func PruneSnapshots(ctx context.Context, store blob.Store, keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	infos, err := ListSnapshots(ctx, store)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := 0; i < len(infos)-keep; i++ {
		ok, err := store.Delete(ctx, infos[i].Key)
		if err != nil {
			return removed, fmt.Errorf("delete %s: %w", infos[i].Key, err)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}
