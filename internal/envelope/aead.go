package envelope

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"kv-go/internal/errors"
)

const (
	NonceSize = chacha20poly1305.NonceSizeX
	TagSize   = chacha20poly1305.Overhead
)

// Seal encrypts plaintext with XChaCha20-Poly1305, binding aad into the tag.
func Seal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes", NonceSize)
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts ciphertext. It returns no plaintext unless the tag verifies.
func Open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(nonce) != NonceSize {
		return nil, errors.Corruptf("nonce must be %d bytes", NonceSize)
	}
	if len(ciphertext) < TagSize {
		return nil, errors.Corruptf("payload truncated")
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, errors.ErrAuthFailed
	}
	return plaintext, nil
}
