package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"kv-go/internal/envelope"
	"kv-go/internal/errors"
)

const (
	Magic = "KVLT"

	// FormatVersion is the only container version this build reads and writes.
	FormatVersion uint16 = 1

	CipherXChaCha20Poly1305 uint8 = 1
	KDFArgon2id             uint8 = 1
)

// Header is the cleartext prefix of a container file. Its serialized bytes are
// authenticated as associated data of the payload.
type Header struct {
	Version uint16
	Cipher  uint8
	KDFAlgo uint8
	KDF     envelope.KDFParams
	Seed    []byte
	Nonce   []byte
}

// NewHeader returns a header for kdf with a fresh seed and nonce.
func NewHeader(kdf envelope.KDFParams) (*Header, error) {
	seed, err := envelope.RandomBytes(envelope.SeedSize)
	if err != nil {
		return nil, fmt.Errorf("generating seed: %w", err)
	}
	nonce, err := envelope.RandomBytes(envelope.NonceSize)
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return &Header{
		Version: FormatVersion,
		Cipher:  CipherXChaCha20Poly1305,
		KDFAlgo: KDFArgon2id,
		KDF:     kdf,
		Seed:    seed,
		Nonce:   nonce,
	}, nil
}

// MarshalBinary encodes the header in its fixed big-endian layout.
func (h *Header) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Magic)

	fields := []any{h.Version, h.Cipher, h.KDFAlgo, h.KDF.Time, h.KDF.Memory, h.KDF.Threads}
	for _, v := range fields {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, fmt.Errorf("encoding header: %w", err)
		}
	}
	for _, b := range [][]byte{h.KDF.Salt, h.Seed, h.Nonce} {
		if len(b) > 255 {
			return nil, fmt.Errorf("header field too long: %d bytes", len(b))
		}
		buf.WriteByte(byte(len(b)))
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// ParseHeader decodes the header at the start of data and returns it with its encoded length.
func ParseHeader(data []byte) (*Header, int, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != Magic {
		return nil, 0, errors.Corruptf("not a container file")
	}

	h := &Header{}
	if err := binary.Read(r, binary.BigEndian, &h.Version); err != nil {
		return nil, 0, errors.Corruptf("truncated header")
	}
	if h.Version != FormatVersion {
		return nil, 0, fmt.Errorf("version %d: %w", h.Version, errors.ErrUnsupportedVersion)
	}

	fields := []any{&h.Cipher, &h.KDFAlgo, &h.KDF.Time, &h.KDF.Memory, &h.KDF.Threads}
	for _, v := range fields {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return nil, 0, errors.Corruptf("truncated header")
		}
	}
	if h.Cipher != CipherXChaCha20Poly1305 {
		return nil, 0, errors.Corruptf("unknown cipher %d", h.Cipher)
	}
	if h.KDFAlgo != KDFArgon2id {
		return nil, 0, errors.Corruptf("unknown kdf %d", h.KDFAlgo)
	}

	var err error
	if h.KDF.Salt, err = readField(r, "salt", envelope.SaltSize); err != nil {
		return nil, 0, err
	}
	if h.Seed, err = readField(r, "seed", envelope.SeedSize); err != nil {
		return nil, 0, err
	}
	if h.Nonce, err = readField(r, "nonce", envelope.NonceSize); err != nil {
		return nil, 0, err
	}
	if err := h.KDF.Validate(); err != nil {
		return nil, 0, errors.Corruptf("%v", err)
	}

	return h, len(data) - r.Len(), nil
}

func readField(r *bytes.Reader, name string, want int) ([]byte, error) {
	n, err := r.ReadByte()
	if err != nil {
		return nil, errors.Corruptf("truncated %s", name)
	}
	if int(n) != want {
		return nil, errors.Corruptf("%s must be %d bytes, got %d", name, want, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errors.Corruptf("truncated %s", name)
	}
	return b, nil
}
