// Package vault encrypts provider API keys at rest.
//
// Credentials are sealed with AES-GCM under a single process-wide key, so a
// tampered or foreign ciphertext fails authentication instead of decrypting
// to garbage. Tokens are stored as base64(nonce || ciphertext).
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidToken indicates a sealed token is malformed, forged, or was
// sealed under a different key. Callers surface this as "credential
// unusable, please re-enter", never as a generic server error.
var ErrInvalidToken = errors.New("invalid credential token")

// Vault seals and opens credential secrets using AES-GCM.
// The zero value is not usable; construct with New.
type Vault struct {
	aead cipher.AEAD
}

// New builds a Vault from a raw AES key.
// key must be a valid AES length (16/24/32 bytes).
func New(key []byte) (*Vault, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Seal encrypts one plaintext credential and returns a storable token.
func (v *Vault) Seal(plaintext string) (string, error) {
	if v == nil || v.aead == nil {
		return "", errors.New("vault is not configured")
	}

	// AES-GCM requires a unique nonce per encryption under the same key.
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	ciphertext := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	payload := append(nonce, ciphertext...)
	return base64.RawStdEncoding.EncodeToString(payload), nil
}

// Open decrypts one previously sealed token.
// Any malformed, truncated, tampered, or wrong-key token returns
// ErrInvalidToken; the underlying cause is never exposed.
func (v *Vault) Open(token string) (string, error) {
	if v == nil || v.aead == nil {
		return "", errors.New("vault is not configured")
	}

	payload, err := base64.RawStdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidToken
	}

	nonceSize := v.aead.NonceSize()
	if len(payload) < nonceSize {
		return "", ErrInvalidToken
	}

	nonce := payload[:nonceSize]
	ciphertext := payload[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Authentication failure: tampered data or a different key.
		return "", ErrInvalidToken
	}
	return string(plaintext), nil
}

// GenerateKey returns a new base64-encoded 32-byte key suitable for
// ENCRYPTION_KEY. Used by the keygen command.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("read random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
