// Package sealer encrypts small secrets at rest with XChaCha20-Poly1305.
//
// The key is derived from an installation secret with HKDF-SHA256, so the
// same secret always opens what it sealed. Sealed output is nonce||ciphertext.
package sealer

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest secret New accepts.
const MinSecretLength = 16

var (
	// ErrSecretTooShort is returned by New for weak secrets.
	ErrSecretTooShort = errors.New("sealer: secret must be at least 16 bytes")

	// ErrMalformed is returned by Open when the input is not sealed data.
	ErrMalformed = errors.New("sealer: malformed sealed data")

	// ErrTampered is returned by Open when authentication fails.
	ErrTampered = errors.New("sealer: authentication failed")
)

// Sealer seals and opens byte slices. Safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// New derives a key from secret. info separates keys of different purposes
// derived from the same secret.
func New(secret []byte, info string) (*Sealer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("sealer: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealer: init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext bound to ad (usually the storage key).
func (s *Sealer) Seal(plaintext, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("sealer: nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, ad), nil
}

// Open reverses Seal. ad must match the value used when sealing.
func (s *Sealer) Open(sealed, ad []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return nil, ErrMalformed
	}
	plain, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], ad)
	if err != nil {
		return nil, ErrTampered
	}
	return plain, nil
}
