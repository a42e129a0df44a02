// Copyright 2025 James Ross
package repoconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

func sampleConfig() Config {
	return Config{
		HashAlgorithm: "blake3-256",
		Chunker:       ChunkerConfig{Mode: "cdc", Min: 262144, Avg: 1048576, Max: 4194304},
		Compression:   CompressionConfig{Algorithm: "zstd", Level: 3},
		Encryption: EncryptionConfig{
			Enabled: true,
			AEAD:    "aes-256-gcm",
			KDF:     KDFConfig{Kind: "argon2id", Memory: 65536, Time: 3, Threads: 4},
		},
		FormatVersion: FormatVersion,
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cfg := sampleConfig()
	data, err := Marshal(cfg)
	require.NoError(t, err)

	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("not: [valid, yaml: structure"))
	require.Error(t, err)
	assert.Equal(t, vaulterr.KindConfig, vaulterr.KindOf(err))
}

func TestStampWritesOnEmptyRepository(t *testing.T) {
	cfg := sampleConfig()
	written, err := Stamp(cfg, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, written)

	parsed, err := Unmarshal(written)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestStampAcceptsMatchingExistingRecord(t *testing.T) {
	cfg := sampleConfig()
	existing, err := Marshal(cfg)
	require.NoError(t, err)

	out, err := Stamp(cfg, existing)
	require.NoError(t, err)
	assert.Equal(t, existing, out)
}

func TestStampRejectsMismatchedRecord(t *testing.T) {
	cfg := sampleConfig()
	existing, err := Marshal(cfg)
	require.NoError(t, err)

	changed := cfg
	changed.Compression.Algorithm = "lz4"

	_, err = Stamp(changed, existing)
	require.Error(t, err)
	assert.Equal(t, vaulterr.KindConfig, vaulterr.KindOf(err))
}

func TestEqualComparesFieldValues(t *testing.T) {
	a := sampleConfig()
	b := sampleConfig()
	assert.True(t, Equal(a, b))

	b.Chunker.Avg = b.Chunker.Avg + 1
	assert.False(t, Equal(a, b))
}
