// Copyright 2025 James Ross
// Package hashing implements the content-addressing primitive: a stable,
// collision-resistant digest over chunk plaintext, rendered as lowercase
// hex. The chosen algorithm is part of a repository's format and is fixed
// for that repository's lifetime (see internal/repoconfig).
package hashing

import (
	"crypto/sha256"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Algorithm names stamped into repository config. Stable wire identifiers.
const (
	AlgoSHA256  = "sha256"
	AlgoBlake3  = "blake3-256"
)

// Hasher computes a content address for a chunk's plaintext bytes. A Hasher
// holds no state between calls: Sum(p) == Sum(p) always.
type Hasher interface {
	// Sum returns the lowercase-hex digest of data.
	Sum(data []byte) string
	// Algorithm returns the stable identifier for this hasher, as stored in
	// repository config.
	Algorithm() string
}

type sha256Hasher struct{}

func (sha256Hasher) Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (sha256Hasher) Algorithm() string { return AlgoSHA256 }

type blake3Hasher struct{}

func (blake3Hasher) Sum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (blake3Hasher) Algorithm() string { return AlgoBlake3 }

// New returns the Hasher for the given repository-config algorithm
// identifier. Unknown identifiers return (nil, false) so callers can turn
// that into a ConfigError at the config-loading boundary.
func New(algorithm string) (Hasher, bool) {
	switch algorithm {
	case AlgoSHA256:
		return sha256Hasher{}, true
	case AlgoBlake3:
		return blake3Hasher{}, true
	default:
		return nil, false
	}
}
