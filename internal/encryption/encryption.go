// Copyright 2025 James Ross
// Package encryption implements the authenticated-encryption step of the
// pipeline: AES-256-GCM via the standard library, with keys sourced either
// from the operating system's CSPRNG or derived from a passphrase with
// Argon2id. Ciphertext layout is nonce(12) || AEAD-output, matching the
// prototype this package supersedes.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/argon2"

	"github.com/jamesross/vaultkeep/internal/vaulterr"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// NonceSize is the GCM standard nonce length in bytes.
const NonceSize = 12

// Argon2id parameters, following the same OWASP-recommended baseline used
// elsewhere in the pack for password hashing: 64 MiB memory, 3 passes, 4
// parallel lanes, 32-byte output.
const (
	argonMemory  = 64 * 1024
	argonTime    = 3
	argonThreads = 4
)

// MinSaltSize is the minimum accepted passphrase-derivation salt length
// (spec §4.4): salts shorter than this are rejected rather than silently
// accepted and weakly stretched.
const MinSaltSize = 16

// Key is an opaque 256-bit AES key. The zero value is not usable.
type Key struct {
	raw [KeySize]byte
}

// GenerateKey produces a fresh random key from the OS CSPRNG.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k.raw[:]); err != nil {
		return Key{}, vaulterr.Wrap(vaulterr.KindConfig, "failed to generate encryption key", err)
	}
	return k, nil
}

// DeriveKey stretches a passphrase into a key with Argon2id. salt must be at
// least MinSaltSize bytes and must be persisted alongside the repository
// configuration: the same passphrase with a different salt derives a
// different key and silently produces garbage on decrypt, not an error.
func DeriveKey(passphrase string, salt []byte) (Key, error) {
	if len(salt) < MinSaltSize {
		return Key{}, vaulterr.New(vaulterr.KindConfig, "encryption salt shorter than minimum")
	}
	var k Key
	copy(k.raw[:], argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, KeySize))
	return k, nil
}

// KeyFromBytes wraps an already-derived or already-random 32-byte key, e.g.
// one unwrapped from a key-management service.
func KeyFromBytes(b []byte) (Key, error) {
	if len(b) != KeySize {
		return Key{}, vaulterr.New(vaulterr.KindConfig, "encryption key must be exactly 32 bytes")
	}
	var k Key
	copy(k.raw[:], b)
	return k, nil
}

// Bytes exports the raw key material, e.g. for sealing under a KMS key.
func (k Key) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k.raw[:])
	return out
}

// Encryptor seals and opens chunk payloads with AES-256-GCM under a single
// fixed key.
type Encryptor struct {
	aead cipher.AEAD
}

// New constructs an Encryptor bound to key.
func New(key Key) (*Encryptor, error) {
	block, err := aes.NewCipher(key.raw[:])
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindConfig, "failed to initialize AES cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindConfig, "failed to initialize GCM mode", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns
// nonce || ciphertext || tag. Two calls on identical plaintext never
// produce identical output (spec P6).
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindConfig, "failed to generate nonce", err)
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return sealed, nil
}

// Decrypt opens a payload produced by Encrypt. Any corruption of the nonce,
// ciphertext, or tag is rejected with DecryptError; GCM does not
// distinguish which.
func (e *Encryptor) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize {
		return nil, vaulterr.New(vaulterr.KindDecrypt, "ciphertext shorter than nonce")
	}
	nonce, ciphertext := sealed[:NonceSize], sealed[NonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KindDecrypt, "authentication failed", err)
	}
	return plaintext, nil
}
