// Package envelope derives container keys from credentials and seals payloads
// with authenticated encryption.
package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"kv-go/internal/errors"
)

const (
	KeySize  = 32
	SaltSize = 32
	SeedSize = 32

	hkdfInfo = "kv container v1"

	// maxMemoryKiB bounds what a container header may ask argon2 to allocate (4 GiB).
	maxMemoryKiB = 4 * 1024 * 1024
)

// KDFParams are the argon2id parameters stored in a container header.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	Salt    []byte
}

// DefaultKDFParams returns the parameters used for new containers, without a salt.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}
}

// Validate rejects parameters that argon2 cannot run or that would be abusive.
func (p KDFParams) Validate() error {
	if p.Time == 0 {
		return fmt.Errorf("kdf time must be positive")
	}
	if p.Threads == 0 {
		return fmt.Errorf("kdf threads must be positive")
	}
	if p.Memory < 8*uint32(p.Threads) {
		return fmt.Errorf("kdf memory must be at least %d KiB", 8*uint32(p.Threads))
	}
	if p.Memory > maxMemoryKiB {
		return fmt.Errorf("kdf memory %d KiB exceeds limit", p.Memory)
	}
	if len(p.Salt) != SaltSize {
		return fmt.Errorf("kdf salt must be %d bytes, got %d", SaltSize, len(p.Salt))
	}
	return nil
}

// WithFreshSalt returns a copy of p carrying a new random salt.
func (p KDFParams) WithFreshSalt() (KDFParams, error) {
	salt, err := RandomBytes(SaltSize)
	if err != nil {
		return KDFParams{}, err
	}
	p.Salt = salt
	return p, nil
}

// Credentials are what a user supplies to unlock a container.
// Keyfile holds the keyfile contents, not its path.
type Credentials struct {
	Password []byte
	Keyfile  []byte
}

// CompositeKey hashes the password and keyfile into a single secret.
// Either part may be absent, but not both.
func CompositeKey(c Credentials) ([]byte, error) {
	if len(c.Password) == 0 && len(c.Keyfile) == 0 {
		return nil, errors.ErrNoCredentials
	}

	h := sha3.New256()
	if len(c.Password) > 0 {
		sum := sha3.Sum256(c.Password)
		h.Write(sum[:])
	}
	if len(c.Keyfile) > 0 {
		sum := sha3.Sum256(c.Keyfile)
		h.Write(sum[:])
	}
	return h.Sum(nil), nil
}

// DeriveKey runs argon2id over the composite key of c.
// The result is the long-lived secret for one container and must stay in memory only.
func DeriveKey(c Credentials, p KDFParams) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	composite, err := CompositeKey(c)
	if err != nil {
		return nil, err
	}
	defer Zero(composite)

	key := argon2.IDKey(composite, p.Salt, p.Time, p.Memory, p.Threads, KeySize)
	if isZero(key) {
		return nil, fmt.Errorf("argon2 produced an all-zero key")
	}
	return key, nil
}

// PayloadKey expands the derived key with a per-save seed into the AEAD key.
func PayloadKey(derived, seed []byte) ([]byte, error) {
	if len(derived) != KeySize {
		return nil, fmt.Errorf("derived key must be %d bytes", KeySize)
	}
	r := hkdf.New(sha256.New, derived, seed, []byte(hkdfInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("expanding payload key: %w", err)
	}
	return key, nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	if n >= 16 && isZero(b) {
		return nil, fmt.Errorf("crypto/rand returned all zeros")
	}
	return b, nil
}

// Zero overwrites b.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
