// Copyright 2025 James Ross
// Package repoconfig is the frozen, on-disk record of a repository's
// format: which hash algorithm, chunker, compression, and encryption a
// given backup root was created with. It is written once, on first use of
// an empty root, and compared byte-for-byte on every subsequent open — a
// repository never silently changes format underneath the blobs already
// stored in it.
package repoconfig

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// FormatVersion is the current on-disk repository config schema version.
// Bump it only when the record's shape changes in a way old readers cannot
// tolerate.
const FormatVersion = 1

// ChunkerConfig mirrors the repository-config chunker record (spec §6):
// fixed mode uses Size; content-defined mode uses Min/Avg/Max.
type ChunkerConfig struct {
	Mode string `yaml:"mode"`
	Size int    `yaml:"size,omitempty"`
	Min  int    `yaml:"min,omitempty"`
	Avg  int    `yaml:"avg,omitempty"`
	Max  int    `yaml:"max,omitempty"`
}

// CompressionConfig mirrors the compression record. Algorithm is "none",
// "zstd", or "lz4"; Level is meaningful only for "zstd".
type CompressionConfig struct {
	Algorithm string `yaml:"algorithm"`
	Level     int    `yaml:"level,omitempty"`
}

// KDFConfig describes how an encryption key was derived. Kind is "random"
// (key generated directly from the OS CSPRNG, held by the caller) or
// "argon2id" (derived from a passphrase, parameters recorded here so a
// reopened repository stretches the same passphrase the same way).
type KDFConfig struct {
	Kind    string `yaml:"kind"`
	Memory  uint32 `yaml:"memory,omitempty"`
	Time    uint32 `yaml:"time,omitempty"`
	Threads uint8  `yaml:"threads,omitempty"`
}

// EncryptionConfig mirrors the encryption record. Enabled false means
// chunk blobs are stored as compression output with no AEAD wrapper.
type EncryptionConfig struct {
	Enabled bool      `yaml:"enabled"`
	AEAD    string    `yaml:"aead,omitempty"`
	KDF     KDFConfig `yaml:"kdf,omitempty"`
}

// Config is the immutable repository record written to <root>/config. All
// fields are mandatory once written.
type Config struct {
	HashAlgorithm string             `yaml:"hash_algorithm"`
	Chunker       ChunkerConfig      `yaml:"chunker"`
	Compression   CompressionConfig  `yaml:"compression"`
	Encryption    EncryptionConfig   `yaml:"encryption"`
	FormatVersion int                `yaml:"format_version"`
}

// Marshal renders cfg as the canonical YAML record stored at <root>/config.
func Marshal(cfg Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindConfig, "failed to marshal repository config", err)
	}
	return out, nil
}

// Unmarshal parses a repository config record previously produced by
// Marshal.
func Unmarshal(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, vaulterr.Wrap(vaulterr.KindConfig, "failed to parse repository config", err)
	}
	return cfg, nil
}

// Equal reports whether two configs describe the same repository format.
// Comparing the marshaled form rather than the struct directly keeps this
// in lockstep with whatever fields Marshal actually persists.
func Equal(a, b Config) bool {
	am, errA := Marshal(a)
	bm, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(am, bm)
}

// Stamp writes cfg as the repository's config record if none exists yet
// (existing is nil), or verifies cfg matches the existing record exactly.
// A repository's format is decided once, at creation, and held fixed for
// its lifetime (spec §6) — Stamp is the single chokepoint enforcing that.
func Stamp(cfg Config, existing []byte) ([]byte, error) {
	if len(existing) == 0 {
		return Marshal(cfg)
	}
	current, err := Unmarshal(existing)
	if err != nil {
		return nil, err
	}
	if !Equal(cfg, current) {
		return nil, vaulterr.New(vaulterr.KindConfig, "repository config does not match the format it was created with")
	}
	return existing, nil
}
