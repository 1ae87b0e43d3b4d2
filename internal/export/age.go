// Package export seals export documents with filippo.io/age.
package export

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"filippo.io/age"

	"kv-go/internal/errors"
	"kv-go/internal/kv"
)

// AgeSealer encrypts exports either to X25519 recipients or with a passphrase.
type AgeSealer struct {
	recipients []age.Recipient
}

var _ kv.Sealer = (*AgeSealer)(nil)

// NewRecipientSealer encrypts to every given "age1..." public key.
func NewRecipientSealer(keys []string) (*AgeSealer, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(keys))
	for _, k := range keys {
		r, err := age.ParseX25519Recipient(k)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", k, err)
		}
		recipients = append(recipients, r)
	}
	return &AgeSealer{recipients: recipients}, nil
}

// NewPassphraseSealer encrypts with an scrypt passphrase. A zero workFactor
// keeps age's default.
func NewPassphraseSealer(passphrase string, workFactor int) (*AgeSealer, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	r, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if workFactor > 0 {
		r.SetWorkFactor(workFactor)
	}
	return &AgeSealer{recipients: []age.Recipient{r}}, nil
}

// Seal reads plaintext from r and writes age ciphertext to w.
func (s *AgeSealer) Seal(r io.Reader, w io.Writer) error {
	encWriter, err := age.Encrypt(w, s.recipients...)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting export: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// AgeUnsealer decrypts exports with X25519 identities or a passphrase.
type AgeUnsealer struct {
	identities []age.Identity
}

var _ kv.Unsealer = (*AgeUnsealer)(nil)

// NewIdentityUnsealer loads the identities in an age key file.
func NewIdentityUnsealer(path string) (*AgeUnsealer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identity file: %w", err)
	}
	return &AgeUnsealer{identities: identities}, nil
}

func NewPassphraseUnsealer(passphrase string) (*AgeUnsealer, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	return &AgeUnsealer{identities: []age.Identity{identity}}, nil
}

// Unseal reads age ciphertext from r and writes the plaintext to w.
// A key or passphrase that does not match yields errors.ErrAuthFailed.
func (u *AgeUnsealer) Unseal(r io.Reader, w io.Writer) error {
	decReader, err := age.Decrypt(r, u.identities...)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return fmt.Errorf("decrypting export: %w", errors.ErrAuthFailed)
		}
		return fmt.Errorf("decrypting export: %w", err)
	}
	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("reading decrypted export: %w", err)
	}
	return nil
}
