package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"kv-go/internal/envelope"
)

// FastKDF returns argon2 parameters cheap enough for unit tests. Never use them for real containers.
func FastKDF() envelope.KDFParams {
	return envelope.KDFParams{Time: 1, Memory: 64, Threads: 1}
}

// Password returns credentials holding only a password.
func Password(pw string) envelope.Credentials {
	return envelope.Credentials{Password: []byte(pw)}
}

// WriteFile writes content to name inside dir and returns the full path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
