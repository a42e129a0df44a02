// Copyright 2025 James Ross
// Package compression implements the symmetric compress/decompress step of
// the pipeline. Algorithm selection is fixed per repository; decompression
// enforces a plaintext expansion ceiling to bound decompression bombs.
package compression

import (
	"io"

	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// Algorithm names stamped into repository config.
const (
	AlgoNone = "none"
	AlgoZstd = "zstd"
	AlgoLZ4  = "lz4"
)

// MaxDecompressedSize bounds a single Decompress call's output (spec §4.3,
// P10): decompressing a crafted payload whose expansion would exceed this
// fails with DecompressError rather than exhausting memory.
const MaxDecompressedSize = 128 * 1024 * 1024

// Compressor compresses and decompresses chunk payloads.
type Compressor interface {
	Compress(plaintext []byte) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
	Algorithm() string
	// Close releases any codec resources (encoder/decoder pools). Safe to
	// call on a Compressor that was never used.
	Close()
}

// Config mirrors the repository-config compression record.
type Config struct {
	Algorithm string
	// Level is meaningful only for AlgoZstd, range [1, 22].
	Level int
}

// DefaultConfig matches spec §4.3's default: zstd level 3.
func DefaultConfig() Config {
	return Config{Algorithm: AlgoZstd, Level: 3}
}

// New constructs the Compressor named by cfg.Algorithm.
func New(cfg Config) (Compressor, error) {
	switch cfg.Algorithm {
	case "", AlgoNone:
		return noneCompressor{}, nil
	case AlgoZstd:
		return newZstdCompressor(cfg.Level)
	case AlgoLZ4:
		return newLZ4Compressor(), nil
	default:
		return nil, vaulterr.New(vaulterr.KindConfig, "unknown compression algorithm: "+cfg.Algorithm)
	}
}

type noneCompressor struct{}

func (noneCompressor) Compress(p []byte) ([]byte, error) { return p, nil }

func (noneCompressor) Decompress(p []byte) ([]byte, error) {
	if len(p) > MaxDecompressedSize {
		return nil, vaulterr.New(vaulterr.KindDecompress, "payload exceeds decompression ceiling")
	}
	return p, nil
}

func (noneCompressor) Algorithm() string { return AlgoNone }
func (noneCompressor) Close()            {}

// limitedRead reads everything from r through a ceiling-enforcing limit
// reader, failing with DecompressError if the ceiling is reached without
// the stream ending (an unambiguous sign of bomb-shaped output, since a
// legitimate payload under the ceiling hits EOF first).
func limitedRead(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, MaxDecompressedSize+1)
	out, err := io.ReadAll(limited)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindDecompress, "decompression read failed", err)
	}
	if len(out) > MaxDecompressedSize {
		return nil, vaulterr.New(vaulterr.KindDecompress, "payload exceeds decompression ceiling")
	}
	return out, nil
}
