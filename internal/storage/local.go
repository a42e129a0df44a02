// Copyright 2025 James Ross
package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// Local persists chunks and metadata under a base directory, chunks and
// metadata kept under parallel subtrees, and chunk files sharded by the
// first two hex characters of their address to avoid one flat directory
// holding every chunk in the repository.
type Local struct {
	chunksDir   string
	metadataDir string
}

// NewLocal creates (if needed) and opens a local filesystem backend rooted
// at baseDir.
func NewLocal(baseDir string) (*Local, error) {
	chunksDir := filepath.Join(baseDir, "chunks")
	metadataDir := filepath.Join(baseDir, "metadata")
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindIO, "failed to create chunks directory", err)
	}
	if err := os.MkdirAll(metadataDir, 0o755); err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindIO, "failed to create metadata directory", err)
	}
	return &Local{chunksDir: chunksDir, metadataDir: metadataDir}, nil
}

func (l *Local) chunkPath(address string) string {
	return filepath.Join(l.chunksDir, shardPrefix(address), address)
}

func (l *Local) metadataFilePath(key string) string {
	return filepath.Join(l.metadataDir, key)
}

// writeDurable writes data to path, fsyncing the file before close so the
// write is on disk before PutChunk/PutMetadata report success.
func writeDurable(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return vaulterr.Wrap(vaulterr.KindIO, "failed to create parent directory", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return vaulterr.Wrap(vaulterr.KindIO, "failed to create file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return vaulterr.Wrap(vaulterr.KindIO, "failed to write file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return vaulterr.Wrap(vaulterr.KindIO, "failed to fsync file", err)
	}
	if err := f.Close(); err != nil {
		return vaulterr.Wrap(vaulterr.KindIO, "failed to close file", err)
	}
	return nil
}

func (l *Local) PutChunk(_ context.Context, address string, data []byte) error {
	return writeDurable(l.chunkPath(address), data)
}

func (l *Local) GetChunk(_ context.Context, address string) ([]byte, error) {
	data, err := os.ReadFile(l.chunkPath(address))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound
		}
		return nil, vaulterr.Wrap(vaulterr.KindIO, "failed to read chunk", err)
	}
	return data, nil
}

func (l *Local) ChunkExists(_ context.Context, address string) (bool, error) {
	_, err := os.Stat(l.chunkPath(address))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, vaulterr.Wrap(vaulterr.KindIO, "failed to stat chunk", err)
}

func (l *Local) DeleteChunk(_ context.Context, address string) error {
	err := os.Remove(l.chunkPath(address))
	if err != nil && !os.IsNotExist(err) {
		return vaulterr.Wrap(vaulterr.KindIO, "failed to delete chunk", err)
	}
	return nil
}

func (l *Local) ListChunks(_ context.Context) ([]string, error) {
	var addresses []string
	entries, err := os.ReadDir(l.chunksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, vaulterr.Wrap(vaulterr.KindIO, "failed to list chunk shards", err)
	}
	for _, shard := range entries {
		if !shard.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(l.chunksDir, shard.Name()))
		if err != nil {
			return nil, vaulterr.Wrap(vaulterr.KindIO, "failed to list chunk shard", err)
		}
		for _, f := range files {
			addresses = append(addresses, f.Name())
		}
	}
	return addresses, nil
}

func (l *Local) PutMetadata(_ context.Context, key string, data []byte) error {
	return writeDurable(l.metadataFilePath(key), data)
}

func (l *Local) GetMetadata(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.metadataFilePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound
		}
		return nil, vaulterr.Wrap(vaulterr.KindIO, "failed to read metadata", err)
	}
	return data, nil
}

func (l *Local) DeleteMetadata(_ context.Context, key string) error {
	err := os.Remove(l.metadataFilePath(key))
	if err != nil && !os.IsNotExist(err) {
		return vaulterr.Wrap(vaulterr.KindIO, "failed to delete metadata", err)
	}
	return nil
}

func (l *Local) Stats(ctx context.Context) (Stats, error) {
	addresses, err := l.ListChunks(ctx)
	if err != nil {
		return Stats{}, err
	}
	var total uint64
	for _, addr := range addresses {
		info, err := os.Stat(l.chunkPath(addr))
		if err == nil {
			total += uint64(info.Size())
		}
	}
	return Stats{TotalChunks: uint64(len(addresses)), TotalBytes: total}, nil
}
