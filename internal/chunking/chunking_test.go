// Copyright 2025 James Ross
package chunking

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesross/vaultkeep/internal/hashing"
)

func sha256Hasher(t *testing.T) hashing.Hasher {
	t.Helper()
	h, ok := hashing.New(hashing.AlgoSHA256)
	require.True(t, ok)
	return h
}

func TestFixedChunkerExactSizes(t *testing.T) {
	h := sha256Hasher(t)
	c := New(Config{Mode: ModeFixed, FixedSize: 1000}, h)

	data := bytes.Repeat([]byte{0x41}, 10000)
	chunks, err := c.Chunk(data)
	require.NoError(t, err)
	require.Len(t, chunks, 10)
	for _, ch := range chunks {
		assert.Equal(t, 1000, ch.Size)
	}
}

func TestFixedChunkerShortLastChunk(t *testing.T) {
	h := sha256Hasher(t)
	c := New(Config{Mode: ModeFixed, FixedSize: 1000}, h)

	data := bytes.Repeat([]byte{0x41}, 10500)
	chunks, err := c.Chunk(data)
	require.NoError(t, err)
	require.Len(t, chunks, 11)
	assert.Equal(t, 500, chunks[10].Size)
}

func TestEmptyInputProducesNoChunks(t *testing.T) {
	h := sha256Hasher(t)
	for _, cfg := range []Config{
		{Mode: ModeFixed, FixedSize: 100},
		DefaultCDCConfig(),
	} {
		c := New(cfg, h)
		chunks, err := c.Chunk(nil)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestSmallFileBelowMinSizeIsOneChunk(t *testing.T) {
	h := sha256Hasher(t)
	c := New(DefaultCDCConfig(), h)

	data := bytes.Repeat([]byte{0x41}, 1024)
	chunks, err := c.Chunk(data)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, h.Sum(data), chunks[0].Address)
}

func TestCDCRespectsMinAndMaxBounds(t *testing.T) {
	h := sha256Hasher(t)
	cfg := Config{Mode: ModeContentDefined, MinSize: 256, AvgSize: 1024, MaxSize: 4096}
	c := New(cfg, h)

	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 2000)
	chunks, err := c.Chunk(data)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var total int
	for i, ch := range chunks {
		total += ch.Size
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, ch.Size, cfg.MinSize)
		}
		assert.LessOrEqual(t, ch.Size, cfg.MaxSize)
		assert.Equal(t, h.Sum(ch.Plaintext), ch.Address)
	}
	assert.Equal(t, len(data), total)
}

func TestCDCDeterministic(t *testing.T) {
	h := sha256Hasher(t)
	c := New(DefaultCDCConfig(), h)

	data := bytes.Repeat([]byte("deterministic content "), 50000)
	a, err := c.Chunk(data)
	require.NoError(t, err)
	b, err := c.Chunk(data)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Address, b[i].Address)
	}
}

func TestCDCLocalityUnderMidStreamEdit(t *testing.T) {
	h := sha256Hasher(t)
	cfg := Config{Mode: ModeContentDefined, MinSize: 1024, AvgSize: 4096, MaxSize: 16384}
	c := New(cfg, h)

	data := pseudoRandom(2_000_000, 42)
	chunksA, err := c.Chunk(data)
	require.NoError(t, err)

	edited := make([]byte, len(data))
	copy(edited, data)
	insertAt := 1_000_000
	patched := append(append(append([]byte{}, edited[:insertAt]...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF), edited[insertAt:]...)

	chunksB, err := c.Chunk(patched)
	require.NoError(t, err)

	setA := make(map[string]bool, len(chunksA))
	for _, ch := range chunksA {
		setA[ch.Address] = true
	}
	shared := 0
	for _, ch := range chunksB {
		if setA[ch.Address] {
			shared++
		}
	}
	// a localized edit should leave most chunks untouched
	assert.GreaterOrEqual(t, shared, len(chunksA)/2)
}

func pseudoRandom(n int, seed uint32) []byte {
	out := make([]byte, n)
	state := seed
	for i := range out {
		state = state*1664525 + 1013904223
		out[i] = byte(state >> 24)
	}
	return out
}
