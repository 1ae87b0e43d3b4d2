package container

import (
	"fmt"
	"os"
	"path/filepath"

	"kv-go/internal/errors"
)

// writeFileAtomic replaces path with data through a synced temp file in the same
// directory, so a crash leaves either the old file or the new one.
func writeFileAtomic(path string, data []byte) error {
	tmpPath, err := writeTemp(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	syncDir(filepath.Dir(path))
	return nil
}

// writeFileExclusive publishes data at path only if nothing exists there yet.
// The hard link fails with EEXIST instead of replacing a file created meanwhile.
func writeFileExclusive(path string, data []byte) error {
	tmpPath, err := writeTemp(path, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	if err := os.Link(tmpPath, path); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("container %s: %w", path, errors.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to link temp file: %w", err)
	}
	syncDir(filepath.Dir(path))
	return nil
}

// writeTemp writes data to a synced 0600 temp file next to path and returns its name.
func writeTemp(path string, data []byte) (string, error) {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".kv-tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return "", fmt.Errorf("failed to set permissions: %w", err)
	}
	success = true
	return tmpPath, nil
}

// Best effort: persist the rename or link itself.
func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
}
