// Copyright 2025 James Ross
// Package storage defines the backend contract chunks and metadata are
// persisted through, plus a handful of concrete implementations used in
// tests and as reference deployments: an in-memory backend, a local
// filesystem backend, an S3-compatible backend, and a Redis backend.
package storage

import (
	"context"

	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// Backend is the storage contract the engine drives. Implementations must
// make Put calls durable before returning success (spec §6): a process
// crash immediately after a successful Put must not lose the write.
type Backend interface {
	PutChunk(ctx context.Context, address string, data []byte) error
	GetChunk(ctx context.Context, address string) ([]byte, error)
	ChunkExists(ctx context.Context, address string) (bool, error)
	DeleteChunk(ctx context.Context, address string) error
	ListChunks(ctx context.Context) ([]string, error)

	PutMetadata(ctx context.Context, key string, data []byte) error
	GetMetadata(ctx context.Context, key string) ([]byte, error)
	DeleteMetadata(ctx context.Context, key string) error

	Stats(ctx context.Context) (Stats, error)
}

// Stats summarizes a backend's current occupancy.
type Stats struct {
	TotalChunks    uint64
	TotalBytes     uint64
	AvailableBytes *uint64
}

// notFound is the shared NotFound error every backend returns for a missing
// chunk or metadata key, so callers can match with errors.Is regardless of
// which backend is in play.
var notFound = vaulterr.ErrNotFound

// shardPrefix returns the two-character subdirectory/prefix an address is
// sharded under, matching the local-filesystem and S3 key layouts (spec
// §6): enough to keep any single directory from growing unbounded, without
// the extra hop a deeper tree would add for small repositories.
func shardPrefix(address string) string {
	if len(address) < 2 {
		return address
	}
	return address[:2]
}
