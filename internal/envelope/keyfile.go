package envelope

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/sha3"
)

// ReadKeyfile streams the file at path through SHA3-256 and returns the digest,
// which is used as Credentials.Keyfile.
func ReadKeyfile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening keyfile: %w", err)
	}
	defer f.Close()

	h := sha3.New256()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, fmt.Errorf("reading keyfile: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("keyfile %s is empty", path)
	}
	return h.Sum(nil), nil
}
