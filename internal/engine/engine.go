// Copyright 2025 James Ross
// Package engine orchestrates the forward (ingest) and reverse (restore)
// pipelines over the chunking, compression, encryption, dedup, and storage
// packages. It is the only component that touches all five.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jamesross/vaultkeep/internal/chunking"
	"github.com/jamesross/vaultkeep/internal/compression"
	"github.com/jamesross/vaultkeep/internal/dedup"
	"github.com/jamesross/vaultkeep/internal/encryption"
	"github.com/jamesross/vaultkeep/internal/hashing"
	"github.com/jamesross/vaultkeep/internal/obs"
	"github.com/jamesross/vaultkeep/internal/snapshot"
	"github.com/jamesross/vaultkeep/internal/storage"
	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// Config bundles the per-repository pipeline settings the engine is built
// from.
type Config struct {
	Chunking    chunking.Config
	Compression compression.Config
	Hasher      string

	// MaxConcurrency bounds how many chunks Ingest/Materialise process at
	// once. Zero means unbounded.
	MaxConcurrency int
}

// DefaultConfig matches the spec's stated defaults across the sub-packages.
func DefaultConfig() Config {
	return Config{
		Chunking:       chunking.DefaultCDCConfig(),
		Compression:    compression.DefaultConfig(),
		Hasher:         hashing.AlgoSHA256,
		MaxConcurrency: 8,
	}
}

// Engine drives the chunk -> dedup-check -> compress -> encrypt -> store
// pipeline forward, and get -> decrypt -> decompress -> verify-hash reverse.
type Engine struct {
	cfg     Config
	chunker chunking.Chunker
	hasher  hashing.Hasher
	codec   compression.Compressor
	cipher  *encryption.Encryptor // nil disables encryption
	index   *dedup.Index
	backend storage.Backend
	logger  *zap.Logger

	addrLocks addrLockTable
}

// New wires an Engine from its component configs. cipher may be nil to run
// the repository without encryption.
func New(cfg Config, backend storage.Backend, cipher *encryption.Encryptor, logger *zap.Logger) (*Engine, error) {
	h, ok := hashing.New(cfg.Hasher)
	if !ok {
		return nil, vaulterr.New(vaulterr.KindConfig, "unknown hash algorithm: "+cfg.Hasher)
	}
	codec, err := compression.New(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:       cfg,
		chunker:   chunking.New(cfg.Chunking, h),
		hasher:    h,
		codec:     codec,
		cipher:    cipher,
		index:     dedup.New(dedup.DefaultShardCount),
		backend:   backend,
		logger:    logger,
		addrLocks: newAddrLockTable(),
	}, nil
}

// Close releases codec resources. Safe to call once.
func (e *Engine) Close() {
	e.codec.Close()
}

// Ingest runs the forward pipeline over an in-memory buffer, returning the
// ordered sequence of chunk addresses that reconstruct it. Chunks already
// known to the dedup index are not re-read from storage or re-written; a
// fresh chunk is compressed, optionally encrypted, and stored exactly once
// even under concurrent Ingest calls racing on the same content.
//
// Ingest itself never bumps the dedup index's refcount; that happens once,
// at snapshot-commit time, per canonicalized address (see
// Engine.CommitSnapshot). ingestOne only decides whether a chunk needs
// writing to storage.
func (e *Engine) Ingest(ctx context.Context, data []byte) ([]string, error) {
	addresses, _, err := e.ingest(ctx, data)
	return addresses, err
}

// ingest is Ingest plus the total bytes newly written to storage by this
// call, for callers (IngestFile) that need to attribute stored bytes back
// to the snapshot being built.
func (e *Engine) ingest(ctx context.Context, data []byte) ([]string, uint64, error) {
	start := time.Now()
	defer func() { obs.IngestDuration.Observe(time.Since(start).Seconds()) }()

	chunks, err := e.chunker.Chunk(data)
	if err != nil {
		return nil, 0, err
	}
	if len(chunks) == 0 {
		return nil, 0, nil
	}

	addresses := make([]string, len(chunks))
	storedBytes := make([]uint64, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.MaxConcurrency > 0 {
		g.SetLimit(e.cfg.MaxConcurrency)
	}

	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			n, err := e.ingestOne(gctx, c)
			if err != nil {
				return err
			}
			addresses[i] = c.Address
			storedBytes[i] = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var total uint64
	for _, n := range storedBytes {
		total += n
	}
	return addresses, total, nil
}

// ingestOne stores c if it is genuinely new, and reports the number of
// bytes it wrote (0 if the chunk was deduplicated or already present).
// Dedup status is checked with Contains, not Acquire: ingestOne never
// durably bumps a refcount, so a chunk that is ingested but never
// referenced by a committed snapshot (a crashed run) leaves no refcount
// behind for CommitSnapshot/DropSnapshot to reconcile. addrLocks still
// serializes concurrent first-writers of the same address.
func (e *Engine) ingestOne(ctx context.Context, c chunking.Chunk) (uint64, error) {
	obs.ChunksIngested.Inc()

	unlock := e.addrLocks.lock(c.Address)
	defer unlock()

	if e.index.Contains(c.Address) {
		obs.ChunksDeduplicated.Inc()
		e.logger.Debug("chunk deduplicated", zap.String("address", c.Address))
		return 0, nil
	}

	exists, err := e.backend.ChunkExists(ctx, c.Address)
	if err != nil {
		return 0, err
	}
	if exists {
		// Known to storage from a prior process lifetime but not yet
		// referenced by a snapshot this process has committed.
		return 0, nil
	}

	compressed, err := e.codec.Compress(c.Plaintext)
	if err != nil {
		return 0, err
	}

	payload := compressed
	if e.cipher != nil {
		payload, err = e.cipher.Encrypt(compressed)
		if err != nil {
			return 0, err
		}
	}

	if err := e.backend.PutChunk(ctx, c.Address, payload); err != nil {
		return 0, err
	}

	obs.ChunksStoredNew.Inc()
	obs.BytesStored.Add(float64(len(payload)))
	e.logger.Debug("chunk stored", zap.String("address", c.Address), zap.Int("stored_bytes", len(payload)))
	return uint64(len(payload)), nil
}

// Materialise runs the reverse pipeline: fetch, decrypt, decompress, and
// verify each chunk in addresses, then concatenate them in order.
func (e *Engine) Materialise(ctx context.Context, addresses []string) ([]byte, error) {
	start := time.Now()
	defer func() { obs.MaterialiseDuration.Observe(time.Since(start).Seconds()) }()

	if len(addresses) == 0 {
		return nil, nil
	}

	plaintexts := make([][]byte, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.MaxConcurrency > 0 {
		g.SetLimit(e.cfg.MaxConcurrency)
	}

	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			plaintext, err := e.materialiseOne(gctx, addr)
			if err != nil {
				return err
			}
			plaintexts[i] = plaintext
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range plaintexts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range plaintexts {
		out = append(out, p...)
	}
	return out, nil
}

func (e *Engine) materialiseOne(ctx context.Context, address string) ([]byte, error) {
	payload, err := e.backend.GetChunk(ctx, address)
	if err != nil {
		return nil, err
	}

	compressed := payload
	if e.cipher != nil {
		compressed, err = e.cipher.Decrypt(payload)
		if err != nil {
			return nil, err
		}
	}

	plaintext, err := e.codec.Decompress(compressed)
	if err != nil {
		return nil, err
	}

	if got := e.hasher.Sum(plaintext); got != address {
		obs.IntegrityFailures.Inc()
		return nil, vaulterr.Wrap(vaulterr.KindIntegrity, "chunk content hash mismatch on restore",
			vaulterr.New(vaulterr.KindIntegrity, "expected "+address+" got "+got))
	}
	return plaintext, nil
}

// FileInput describes one file to be ingested as part of a snapshot.
type FileInput struct {
	LogicalPath    string
	Data           []byte
	ModifiedTime   time.Time
	PermissionBits uint32
	IsDirectory    bool
}

// IngestFile runs Ingest over one file's contents and returns its
// FileMetadata record alongside the number of bytes this call actually
// wrote to storage (excluding chunks that were deduplicated or already
// present), for the caller to fold into the snapshot's Builder via
// Builder.AddFile.
func (e *Engine) IngestFile(ctx context.Context, in FileInput) (snapshot.FileMetadata, uint64, error) {
	addresses, storedBytes, err := e.ingest(ctx, in.Data)
	if err != nil {
		return snapshot.FileMetadata{}, 0, err
	}
	return snapshot.FileMetadata{
		LogicalPath:    in.LogicalPath,
		Size:           uint64(len(in.Data)),
		ModifiedTime:   in.ModifiedTime,
		PermissionBits: in.PermissionBits,
		IsDirectory:    in.IsDirectory,
		ChunkSequence:  addresses,
	}, storedBytes, nil
}

// addrLockTable hands out a per-address mutex so concurrent ingests of the
// same chunk serialize on that address alone, not the whole index.
type addrLockTable struct {
	mu     sync.Mutex
	active map[string]*sync.Mutex
}

func newAddrLockTable() addrLockTable {
	return addrLockTable{active: make(map[string]*sync.Mutex)}
}

func (t *addrLockTable) lock(address string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.active[address]
	if !ok {
		l = &sync.Mutex{}
		t.active[address] = l
	}
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
	}
}
