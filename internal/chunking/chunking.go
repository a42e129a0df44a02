// Copyright 2025 James Ross
// Package chunking splits a byte stream into the variable- or fixed-length
// chunks that are the unit of deduplication and storage. The
// content-defined mode uses a Gear-style rolling fingerprint over a
// precomputed byte table: a boundary is declared wherever the low bits of the rolling
// hash are zero, so local edits perturb only nearby boundaries.
package chunking

import (
	"github.com/jamesross/vaultkeep/internal/hashing"
)

// Mode selects between the two chunking strategies. Part of repository
// config; fixed for a repository's lifetime.
type Mode string

const (
	ModeFixed          Mode = "fixed"
	ModeContentDefined Mode = "cdc"
)

// Chunk is the transient in-pipeline value produced by a Chunker. It is
// never persisted as this triple — only the post-transform payload reaches
// storage.
type Chunk struct {
	Address   string
	Size      int
	Plaintext []byte
}

// Chunker splits an in-memory buffer into chunks.
type Chunker interface {
	Chunk(data []byte) ([]Chunk, error)
}

// Config mirrors the repository-config chunker record (spec §6).
type Config struct {
	Mode Mode

	// Fixed mode.
	FixedSize int

	// Content-defined mode. Min <= Avg <= Max, Avg a power of two.
	MinSize int
	AvgSize int
	MaxSize int
}

// DefaultCDCConfig matches spec §4.2's defaults.
func DefaultCDCConfig() Config {
	return Config{
		Mode:    ModeContentDefined,
		MinSize: 256 * 1024,
		AvgSize: 1024 * 1024,
		MaxSize: 4 * 1024 * 1024,
	}
}

// New builds the Chunker named by cfg.Mode, hashing chunk plaintexts with h
// to produce each Chunk's Address.
func New(cfg Config, h hashing.Hasher) Chunker {
	switch cfg.Mode {
	case ModeFixed:
		return &fixedChunker{size: cfg.FixedSize, hasher: h}
	default:
		return newCDCChunker(cfg, h)
	}
}

func makeChunk(data []byte, h hashing.Hasher) Chunk {
	return Chunk{
		Address:   h.Sum(data),
		Size:      len(data),
		Plaintext: data,
	}
}

// fixedChunker produces chunks of exactly size plaintext bytes except
// possibly the last, which may be shorter.
type fixedChunker struct {
	size   int
	hasher hashing.Hasher
}

func (c *fixedChunker) Chunk(data []byte) ([]Chunk, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var chunks []Chunk
	for offset := 0; offset < len(data); offset += c.size {
		end := offset + c.size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, makeChunk(data[offset:end], c.hasher))
	}
	return chunks, nil
}
