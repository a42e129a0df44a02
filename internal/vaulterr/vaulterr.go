// Copyright 2025 James Ross
// Package vaulterr defines the stable error taxonomy shared by every
// VaultKeep component. Callers should switch on Kind, never on message text.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind partitions failures the way callers actually need to react to them.
type Kind string

const (
	KindIO           Kind = "io"
	KindStorage      Kind = "storage_error"
	KindNotFound     Kind = "not_found"
	KindIntegrity    Kind = "integrity_error"
	KindDecrypt      Kind = "decrypt_error"
	KindDecompress   Kind = "decompress_error"
	KindConfig       Kind = "config_error"
	KindCancelled    Kind = "cancelled"
)

// Error is the concrete error type returned across package boundaries. It
// carries a stable Kind plus a human message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Kind only, so errors.Is(err, vaulterr.New(KindNotFound, ""))
// works as a coarse-grained kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error that wraps cause, preserving it for errors.Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *Error, or "" otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinels for the handful of cases callers commonly compare against with
// errors.Is directly rather than inspecting Kind.
var (
	ErrNotFound        = New(KindNotFound, "not found")
	ErrIntegrity       = New(KindIntegrity, "content hash mismatch")
	ErrDecrypt         = New(KindDecrypt, "decryption failed")
	ErrDecompress      = New(KindDecompress, "decompression failed")
	ErrConfigMismatch  = New(KindConfig, "repository configuration mismatch")
	ErrCancelled       = New(KindCancelled, "operation cancelled")
)
