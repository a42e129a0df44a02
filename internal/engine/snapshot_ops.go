// Copyright 2025 James Ross
package engine

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/jamesross/vaultkeep/internal/obs"
	"github.com/jamesross/vaultkeep/internal/snapshot"
	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

const metadataKeyPrefix = "snapshot/"

func snapshotMetadataKey(id string) string {
	return metadataKeyPrefix + id
}

// CommitSnapshot finalizes a snapshot built by a snapshot.Builder: it
// canonicalizes the builder's chunk-address union, bumps each address's
// dedup refcount exactly once regardless of how many files referenced it,
// writes the snapshot record to storage, and only then reports success.
// Refcounts are bumped before the metadata write is confirmed durable so a
// crash between the two cannot leave a chunk referenced by a snapshot that
// was never actually persisted; if the metadata write fails the bumped
// refcounts are rolled back.
func (e *Engine) CommitSnapshot(ctx context.Context, b *snapshot.Builder) (snapshot.Snapshot, error) {
	snap := b.Finish(time.Now())

	acquired := make([]string, 0, len(snap.ChunkSequenceUnion))
	for _, addr := range snap.ChunkSequenceUnion {
		e.index.Acquire(addr)
		acquired = append(acquired, addr)
	}
	obs.DedupIndexSize.Set(float64(e.index.Len()))

	encoded, err := json.Marshal(snap)
	if err != nil {
		e.rollbackAcquire(acquired)
		return snapshot.Snapshot{}, vaulterr.Wrap(vaulterr.KindConfig, "failed to marshal snapshot", err)
	}

	if err := e.backend.PutMetadata(ctx, snapshotMetadataKey(snap.SnapshotID), encoded); err != nil {
		e.rollbackAcquire(acquired)
		return snapshot.Snapshot{}, err
	}

	obs.SnapshotsCommitted.Inc()
	e.logger.Info("snapshot committed",
		zap.String("snapshot_id", snap.SnapshotID),
		zap.Uint64("file_count", snap.FileCount),
		zap.Uint64("total_stored_bytes", snap.TotalStoredBytes))

	return snap, nil
}

func (e *Engine) rollbackAcquire(addresses []string) {
	for _, addr := range addresses {
		e.index.Release(addr)
	}
}

// LoadSnapshot fetches and decodes a previously committed snapshot.
func (e *Engine) LoadSnapshot(ctx context.Context, snapshotID string) (snapshot.Snapshot, error) {
	data, err := e.backend.GetMetadata(ctx, snapshotMetadataKey(snapshotID))
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot.Snapshot{}, vaulterr.Wrap(vaulterr.KindConfig, "failed to unmarshal snapshot", err)
	}
	return snap, nil
}

// RestoreSnapshot materialises every file in a committed snapshot, returning
// each file's logical path paired with its reconstructed plaintext.
func (e *Engine) RestoreSnapshot(ctx context.Context, snapshotID string) (map[string][]byte, error) {
	snap, err := e.LoadSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(snap.Files))
	for _, f := range snap.Files {
		if f.IsDirectory {
			continue
		}
		data, err := e.Materialise(ctx, f.ChunkSequence)
		if err != nil {
			return nil, err
		}
		out[f.LogicalPath] = data
	}
	return out, nil
}

// DropSnapshot releases this snapshot's reference to each of its chunks and
// deletes any chunk whose refcount reaches zero as a result. Deletion is
// best-effort: a failure to delete an orphaned chunk is logged, not fatal,
// since a future Sweep will reclaim it.
func (e *Engine) DropSnapshot(ctx context.Context, snapshotID string) error {
	snap, err := e.LoadSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}

	for _, addr := range snap.ChunkSequenceUnion {
		_, reachedZero := e.index.Release(addr)
		if !reachedZero {
			continue
		}
		if err := e.backend.DeleteChunk(ctx, addr); err != nil {
			e.logger.Warn("failed to delete orphaned chunk after snapshot drop",
				zap.String("address", addr), zap.Error(err))
		}
	}

	obs.SnapshotsDropped.Inc()
	return e.backend.DeleteMetadata(ctx, snapshotMetadataKey(snapshotID))
}

// SweepResult reports what a Sweep call reclaimed.
type SweepResult struct {
	ChunksInspected int
	ChunksDeleted   int
}

// Sweep reconciles storage against the in-memory dedup index: any stored
// chunk address with no live reference is deleted. This is the backstop
// for orphans DropSnapshot's best-effort deletion missed, and for chunks
// left behind by a process that crashed mid-ingest before committing a
// snapshot that would have referenced them.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	addresses, err := e.backend.ListChunks(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{ChunksInspected: len(addresses)}
	for _, addr := range addresses {
		if e.index.Contains(addr) {
			continue
		}
		if err := e.backend.DeleteChunk(ctx, addr); err != nil {
			e.logger.Warn("sweep failed to delete orphaned chunk", zap.String("address", addr), zap.Error(err))
			continue
		}
		result.ChunksDeleted++
		obs.SweepChunksDeleted.Inc()
	}

	e.logger.Info("sweep completed",
		zap.Int("chunks_inspected", result.ChunksInspected),
		zap.Int("chunks_deleted", result.ChunksDeleted))

	return result, nil
}
