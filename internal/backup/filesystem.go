// Package backup provides the targets that container snapshots are copied to.
package backup

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kv-go/internal/errors"
	"kv-go/internal/kv"
)

// FileSystemTarget stores snapshots as files below a root directory:
//
//	<root>/
//	  <container basename>/
//	    <timestamp>.kvlt
type FileSystemTarget struct {
	name string
	root string
}

// NewFileSystemTarget creates a target rooted at root, creating the directory if needed.
func NewFileSystemTarget(name, root string) (*FileSystemTarget, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create backup root: %w", err)
	}
	return &FileSystemTarget{name: name, root: root}, nil
}

func (t *FileSystemTarget) Name() string { return t.name }

// Put stores the snapshot atomically. Existing keys are replaced.
func (t *FileSystemTarget) Put(key string, r io.Reader, size int64) error {
	dest, err := t.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return writeFile(dest, r, size)
}

func (t *FileSystemTarget) Get(key string, w io.Writer) error {
	src, err := t.keyPath(key)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("snapshot %s: %w", key, errors.ErrNotFound)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

func (t *FileSystemTarget) List(prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// keyPath maps a slash separated key below root, rejecting keys that escape it.
func (t *FileSystemTarget) keyPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("snapshot key %q: %w", key, errors.ErrInvalidPath)
	}
	return filepath.Join(t.root, clean), nil
}

// writeFile writes data from r to destPath using a temp file and rename.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ kv.BackupTarget = (*FileSystemTarget)(nil)
