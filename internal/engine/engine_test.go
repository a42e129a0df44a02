// Copyright 2025 James Ross
package engine

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesross/vaultkeep/internal/chunking"
	"github.com/jamesross/vaultkeep/internal/encryption"
	"github.com/jamesross/vaultkeep/internal/snapshot"
	"github.com/jamesross/vaultkeep/internal/storage"
)

func newTestEngine(t *testing.T, cipher *encryption.Encryptor) (*Engine, storage.Backend) {
	t.Helper()
	backend := storage.NewMemory()
	cfg := DefaultConfig()
	cfg.Chunking = chunking.Config{Mode: chunking.ModeFixed, FixedSize: 4096}
	e, err := New(cfg, backend, cipher, nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, backend
}

func TestIngestMaterialiseRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	data := bytes.Repeat([]byte("round trip payload "), 10000)
	addresses, err := e.Ingest(ctx, data)
	require.NoError(t, err)
	require.NotEmpty(t, addresses)

	out, err := e.Materialise(ctx, addresses)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestIngestMaterialiseRoundTripWithEncryption(t *testing.T) {
	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	cipher, err := encryption.New(key)
	require.NoError(t, err)

	e, _ := newTestEngine(t, cipher)
	ctx := context.Background()

	data := bytes.Repeat([]byte("encrypted payload "), 10000)
	addresses, err := e.Ingest(ctx, data)
	require.NoError(t, err)

	out, err := e.Materialise(ctx, addresses)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestIngestIsIdempotentForIdenticalContent(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	ctx := context.Background()

	data := bytes.Repeat([]byte("same content every time "), 5000)
	a, err := e.Ingest(ctx, data)
	require.NoError(t, err)
	b, err := e.Ingest(ctx, data)
	require.NoError(t, err)

	assert.Equal(t, a, b)

	stats, err := backend.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(snapshot.CanonicalizeAddresses(a))), stats.TotalChunks, "identical content must not be stored twice")
}

func TestEmptyIngestProducesNoAddresses(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	addrs, err := e.Ingest(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, addrs)

	out, err := e.Materialise(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMaterialiseDetectsCorruptedChunk(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	ctx := context.Background()

	addresses, err := e.Ingest(ctx, []byte("integrity test payload"))
	require.NoError(t, err)
	require.NotEmpty(t, addresses)

	mem := backend.(*storage.Memory)
	corrupted, err := mem.GetChunk(ctx, addresses[0])
	require.NoError(t, err)
	corrupted = append(corrupted, 0xFF)
	require.NoError(t, mem.PutChunk(ctx, addresses[0], corrupted))

	_, err = e.Materialise(ctx, addresses)
	require.Error(t, err)
}

func TestConcurrentIngestOfSameContentStoresOnce(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	ctx := context.Background()

	data := bytes.Repeat([]byte("concurrent content "), 8000)

	var wg sync.WaitGroup
	results := make([][]string, 16)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			addrs, err := e.Ingest(ctx, data)
			require.NoError(t, err)
			results[i] = addrs
		}()
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i])
	}

	stats, err := backend.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(snapshot.CanonicalizeAddresses(results[0]))), stats.TotalChunks)
}

func TestCommitAndRestoreSnapshot(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	b := snapshot.NewBuilder("nightly", "/srv/data")
	meta, stored, err := e.IngestFile(ctx, FileInput{
		LogicalPath:  "file-a.txt",
		Data:         bytes.Repeat([]byte("file a "), 2000),
		ModifiedTime: time.Now(),
	})
	require.NoError(t, err)
	b.AddFile(meta, stored)

	meta2, stored2, err := e.IngestFile(ctx, FileInput{
		LogicalPath:  "file-b.txt",
		Data:         bytes.Repeat([]byte("file b "), 1000),
		ModifiedTime: time.Now(),
	})
	require.NoError(t, err)
	b.AddFile(meta2, stored2)

	snap, err := e.CommitSnapshot(ctx, b)
	require.NoError(t, err)
	assert.Greater(t, snap.TotalStoredBytes, uint64(0), "snapshot of genuinely new content must report nonzero stored bytes")
	assert.NotEmpty(t, snap.SnapshotID)

	restored, err := e.RestoreSnapshot(ctx, snap.SnapshotID)
	require.NoError(t, err)
	require.Contains(t, restored, "file-a.txt")
	require.Contains(t, restored, "file-b.txt")
	assert.Equal(t, bytes.Repeat([]byte("file a "), 2000), restored["file-a.txt"])
}

func TestDropSnapshotReleasesUnreferencedChunks(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	ctx := context.Background()

	b := snapshot.NewBuilder("one-off", "/srv/data")
	meta, stored, err := e.IngestFile(ctx, FileInput{
		LogicalPath: "solo.txt",
		Data:        bytes.Repeat([]byte("solo file content "), 3000),
	})
	require.NoError(t, err)
	b.AddFile(meta, stored)

	snap, err := e.CommitSnapshot(ctx, b)
	require.NoError(t, err)

	require.NoError(t, e.DropSnapshot(ctx, snap.SnapshotID))

	for _, addr := range snap.ChunkSequenceUnion {
		exists, err := backend.ChunkExists(ctx, addr)
		require.NoError(t, err)
		assert.False(t, exists, "chunk should be deleted once its only snapshot is dropped")
	}

	_, err = e.LoadSnapshot(ctx, snap.SnapshotID)
	require.Error(t, err)
}

func TestSweepReclaimsOrphanedChunks(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	ctx := context.Background()

	// write a chunk directly to storage with no dedup-index reference, as
	// if left behind by a crashed ingest that never committed a snapshot.
	require.NoError(t, backend.PutChunk(ctx, "orphan-address", []byte("orphan data")))

	// a chunk that *is* referenced by a committed snapshot must survive.
	b := snapshot.NewBuilder("kept", "/srv/data")
	meta, stored, err := e.IngestFile(ctx, FileInput{LogicalPath: "kept.txt", Data: []byte("referenced content")})
	require.NoError(t, err)
	b.AddFile(meta, stored)
	snap, err := e.CommitSnapshot(ctx, b)
	require.NoError(t, err)
	require.NotEmpty(t, snap.ChunkSequenceUnion)

	// a chunk that was ingested but never committed to a snapshot holds no
	// live reference and is just as much an orphan as one written directly.
	uncommitted, err := e.Ingest(ctx, []byte("uncommitted content"))
	require.NoError(t, err)
	require.NotEmpty(t, uncommitted)

	result, err := e.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ChunksDeleted)

	exists, err := backend.ChunkExists(ctx, "orphan-address")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = backend.ChunkExists(ctx, uncommitted[0])
	require.NoError(t, err)
	assert.False(t, exists, "a chunk ingested without a committed snapshot holds no live reference")

	exists, err = backend.ChunkExists(ctx, snap.ChunkSequenceUnion[0])
	require.NoError(t, err)
	assert.True(t, exists, "sweep must not delete chunks still referenced by a committed snapshot")
}

func TestSnapshotSharedChunkSurvivesOneDrop(t *testing.T) {
	e, backend := newTestEngine(t, nil)
	ctx := context.Background()

	sharedData := bytes.Repeat([]byte("shared across snapshots "), 2000)

	b1 := snapshot.NewBuilder("first", "/srv/data")
	meta1, stored1, err := e.IngestFile(ctx, FileInput{LogicalPath: "shared.txt", Data: sharedData})
	require.NoError(t, err)
	b1.AddFile(meta1, stored1)
	snap1, err := e.CommitSnapshot(ctx, b1)
	require.NoError(t, err)
	assert.Greater(t, snap1.TotalStoredBytes, uint64(0), "first snapshot writes genuinely new chunks")

	b2 := snapshot.NewBuilder("second", "/srv/data")
	meta2, stored2, err := e.IngestFile(ctx, FileInput{LogicalPath: "shared.txt", Data: sharedData})
	require.NoError(t, err)
	b2.AddFile(meta2, stored2)
	snap2, err := e.CommitSnapshot(ctx, b2)
	require.NoError(t, err)
	assert.Zero(t, snap2.TotalStoredBytes, "second snapshot's content is fully deduplicated against the first, so nothing new is stored")

	require.NoError(t, e.DropSnapshot(ctx, snap1.SnapshotID))

	for _, addr := range snap2.ChunkSequenceUnion {
		exists, err := backend.ChunkExists(ctx, addr)
		require.NoError(t, err)
		assert.True(t, exists, "chunk still referenced by snap2 must survive snap1's drop")
	}
}
