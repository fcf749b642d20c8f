package digest

// Package digest computes content-integrity hashes for ingested files.
// The engine is deliberately small: SHA-256, lowercase hex, 64 characters.

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrUnavailable signals that the digest could not be computed.
// Callers treat this as non-fatal: the record is stored unverified.
var ErrUnavailable = errors.New("digest unavailable")

// Digester computes a hex-encoded content hash from a readable stream.
// The caller must hand over a re-readable or dedicated reader; the engine
// consumes whatever it is given.
type Digester interface {
	Hex(r io.Reader) (string, error)
}

// SHA256 is the production Digester.
type SHA256 struct{}

// NewSHA256 returns a SHA-256 based Digester.
func NewSHA256() SHA256 {
	return SHA256{}
}

// Hex hashes the full stream and returns the lowercase hex digest.
// Any read failure is reported as ErrUnavailable with the underlying cause.
func (SHA256) Hex(r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: nil reader", ErrUnavailable)
	}
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
