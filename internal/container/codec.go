// Package container reads and writes encrypted container files and holds the
// session bound to one open container.
package container

import (
	"fmt"

	"kv-go/internal/envelope"
	"kv-go/internal/tree"
)

// Encode serializes t under header h. derivedKey must be the argon2 output for h.KDF;
// the payload key is expanded from it with h.Seed. The same inputs always yield the same bytes.
func Encode(t *tree.Tree, h *Header, derivedKey []byte) ([]byte, error) {
	head, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	plaintext, err := marshalPayload(t)
	if err != nil {
		return nil, err
	}
	defer envelope.Zero(plaintext)

	key, err := envelope.PayloadKey(derivedKey, h.Seed)
	if err != nil {
		return nil, err
	}
	defer envelope.Zero(key)

	sealed, err := envelope.Seal(key, h.Nonce, plaintext, head)
	if err != nil {
		return nil, fmt.Errorf("sealing payload: %w", err)
	}
	return append(head, sealed...), nil
}

// Decode authenticates and parses a container. It returns ErrAuthFailed for wrong
// credentials or tampering and ErrCorrupt for anything structurally invalid.
func Decode(data []byte, creds envelope.Credentials) (*tree.Tree, error) {
	t, _, key, err := decode(data, creds)
	if err != nil {
		return nil, err
	}
	envelope.Zero(key)
	return t, nil
}

func decode(data []byte, creds envelope.Credentials) (*tree.Tree, *Header, []byte, error) {
	h, n, err := ParseHeader(data)
	if err != nil {
		return nil, nil, nil, err
	}

	derived, err := envelope.DeriveKey(creds, h.KDF)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("deriving key: %w", err)
	}
	t, err := decodeWithKey(data, h, n, derived)
	if err != nil {
		envelope.Zero(derived)
		return nil, nil, nil, err
	}
	return t, h, derived, nil
}

func decodeWithKey(data []byte, h *Header, headerLen int, derived []byte) (*tree.Tree, error) {
	key, err := envelope.PayloadKey(derived, h.Seed)
	if err != nil {
		return nil, err
	}
	defer envelope.Zero(key)

	plaintext, err := envelope.Open(key, h.Nonce, data[headerLen:], data[:headerLen])
	if err != nil {
		return nil, err
	}
	defer envelope.Zero(plaintext)

	return unmarshalPayload(plaintext)
}
