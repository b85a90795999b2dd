// Package cryptoutil encrypts personal fields before they reach the user store.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	prefixV1   = "v1:"
	prefixNoop = "noop:"
	keyBytes   = 32
)

var ErrUnknownCiphertext = errors.New("unknown ciphertext version")

// FieldCipher seals field values. aad binds a ciphertext to its owning row so
// a value copied onto another user's record fails to open.
type FieldCipher interface {
	Seal(plaintext, aad []byte) (string, error)
	Open(ciphertext string, aad []byte) ([]byte, error)
}

// AESGCM implements FieldCipher with AES-256-GCM and a random nonce per value.
type AESGCM struct {
	aead cipher.AEAD
}

// ParseKey accepts a 32-byte key encoded as hex or standard base64.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == keyBytes {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == keyBytes {
		return b, nil
	}
	return nil, fmt.Errorf("field encryption key must decode to %d bytes (hex or base64)", keyBytes)
}

func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != keyBytes {
		return nil, fmt.Errorf("aes-gcm key must be %d bytes, got %d", keyBytes, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aead: aead}, nil
}

func (a *AESGCM) Seal(plaintext, aad []byte) (string, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := a.aead.Seal(nonce, nonce, plaintext, aad)
	return prefixV1 + base64.StdEncoding.EncodeToString(out), nil
}

func (a *AESGCM) Open(ciphertext string, aad []byte) ([]byte, error) {
	if strings.HasPrefix(ciphertext, prefixNoop) {
		return NoopCipher{}.Open(ciphertext, aad)
	}
	if !strings.HasPrefix(ciphertext, prefixV1) {
		return nil, ErrUnknownCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext[len(prefixV1):])
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	n := a.aead.NonceSize()
	if len(data) < n {
		return nil, errors.New("ciphertext too short")
	}
	return a.aead.Open(nil, data[:n], data[n:], aad)
}

// NoopCipher stores plaintext behind a marker prefix. Development only.
type NoopCipher struct{}

func (NoopCipher) Seal(plaintext, _ []byte) (string, error) {
	return prefixNoop + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (NoopCipher) Open(ciphertext string, _ []byte) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, prefixNoop) {
		return nil, ErrUnknownCiphertext
	}
	return base64.StdEncoding.DecodeString(ciphertext[len(prefixNoop):])
}
