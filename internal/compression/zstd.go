// Copyright 2025 James Ross
package compression

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// zstdCompressor reuses a single encoder and decoder across calls, guarded
// by a mutex, rather than allocating one per call — adapted from the
// teacher's ZstdCompressor, which does the same for the same reason
// (stream setup is the expensive part).
type zstdCompressor struct {
	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func levelFor(level int) zstd.EncoderLevel {
	switch {
	case level <= 0:
		return zstd.SpeedDefault
	case level <= 3:
		return zstd.SpeedFastest
	case level <= 9:
		return zstd.SpeedDefault
	case level <= 15:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func newZstdCompressor(level int) (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(levelFor(level)))
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindConfig, "failed to initialize zstd encoder", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, vaulterr.Wrap(vaulterr.KindConfig, "failed to initialize zstd decoder", err)
	}
	return &zstdCompressor{encoder: enc, decoder: dec}, nil
}

func (z *zstdCompressor) Compress(plaintext []byte) ([]byte, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.encoder.EncodeAll(plaintext, make([]byte, 0, len(plaintext))), nil
}

func (z *zstdCompressor) Decompress(compressed []byte) ([]byte, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if err := z.decoder.Reset(bytes.NewReader(compressed)); err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindDecompress, "zstd reset failed", err)
	}
	out, err := limitedRead(z.decoder)
	if err != nil {
		if vaulterr.KindOf(err) == vaulterr.KindDecompress {
			return nil, err
		}
		return nil, vaulterr.Wrap(vaulterr.KindDecompress, "zstd decode failed", err)
	}
	return out, nil
}

func (z *zstdCompressor) Algorithm() string { return AlgoZstd }

func (z *zstdCompressor) Close() {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.encoder.Close()
	z.decoder.Close()
}
