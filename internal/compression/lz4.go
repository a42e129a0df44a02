// Copyright 2025 James Ross
package compression

import (
	"bytes"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// lz4Compressor trades compression ratio for speed relative to zstd. Adapted
// from the teacher's pack-level use of pierrec/lz4 as the "fast" codec
// choice; unlike zstdCompressor it needs no persistent encoder/decoder
// state, so the mutex here only protects the scratch buffer reuse.
type lz4Compressor struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newLZ4Compressor() *lz4Compressor {
	return &lz4Compressor{}
}

func (l *lz4Compressor) Compress(plaintext []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Reset()
	w := lz4.NewWriter(&l.buf)
	if _, err := w.Write(plaintext); err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindIO, "lz4 write failed", err)
	}
	if err := w.Close(); err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindIO, "lz4 close failed", err)
	}

	out := make([]byte, l.buf.Len())
	copy(out, l.buf.Bytes())
	return out, nil
}

func (l *lz4Compressor) Decompress(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	out, err := limitedRead(r)
	if err != nil {
		if vaulterr.KindOf(err) == vaulterr.KindDecompress {
			return nil, err
		}
		return nil, vaulterr.Wrap(vaulterr.KindDecompress, "lz4 decode failed", err)
	}
	return out, nil
}

func (l *lz4Compressor) Algorithm() string { return AlgoLZ4 }
func (l *lz4Compressor) Close()            {}
