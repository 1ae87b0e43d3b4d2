package kv

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"kv-go/internal/container"
	"kv-go/internal/errors"
)

// BackupTarget stores copies of encrypted container files.
// All operations stream so large containers are not buffered twice.
type BackupTarget interface {
	// Name identifies the target in snapshot references ("<name>:<key>").
	Name() string

	// Put stores size bytes from r under key. Existing keys are replaced.
	Put(key string, r io.Reader, size int64) error

	// Get writes the snapshot stored under key to w.
	Get(key string, w io.Writer) error

	// List returns all keys starting with prefix in ascending order.
	List(prefix string) ([]string, error)
}

const snapshotTimeFormat = "20060102T150405Z"

// Backup copies the current container file, still encrypted, to every backup target.
// It returns the snapshot references written.
func (s *Service) Backup() ([]string, error) {
	if len(s.backups) == 0 {
		return nil, fmt.Errorf("no backup targets configured")
	}
	path, err := s.containerPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("container %s: %w", path, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("reading container: %w", err)
	}
	if _, _, err := container.ParseHeader(data); err != nil {
		return nil, fmt.Errorf("refusing to back up %s: %w", path, err)
	}

	key := fmt.Sprintf("%s/%s.kvlt", filepath.Base(path), s.clock.Now().UTC().Format(snapshotTimeFormat))
	var refs []string
	for _, target := range s.backups {
		if err := target.Put(key, bytes.NewReader(data), int64(len(data))); err != nil {
			return refs, fmt.Errorf("backing up to %s: %w", target.Name(), err)
		}
		ref := target.Name() + ":" + key
		s.logger.Info("container backed up", "path", path, "snapshot", ref)
		fmt.Fprintf(s.out, "Backed up %s to %s\n", path, ref)
		refs = append(refs, ref)
	}
	return refs, nil
}

// ListBackups prints the snapshots of the current container on every target.
func (s *Service) ListBackups() ([]string, error) {
	path, err := s.containerPath()
	if err != nil {
		return nil, err
	}

	prefix := filepath.Base(path) + "/"
	var refs []string
	for _, target := range s.backups {
		keys, err := target.List(prefix)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", target.Name(), err)
		}
		for _, k := range keys {
			ref := target.Name() + ":" + k
			fmt.Fprintln(s.out, ref)
			refs = append(refs, ref)
		}
	}
	fmt.Fprintf(s.out, "%d snapshots\n", len(refs))
	return refs, nil
}

// RestoreBackup writes the snapshot ref to output, which must not exist yet.
// ref is "<target>:<key>", or a bare key looked up on the first target.
func (s *Service) RestoreBackup(ref, output string) error {
	if output == "" {
		return fmt.Errorf("restore needs an output path")
	}
	target, key, err := s.findTarget(ref)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := target.Get(key, &buf); err != nil {
		return fmt.Errorf("fetching %s: %w", ref, err)
	}
	if _, _, err := container.ParseHeader(buf.Bytes()); err != nil {
		return fmt.Errorf("snapshot %s: %w", ref, err)
	}

	dest := s.resolvePath(output)
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%s: %w", dest, errors.ErrAlreadyExists)
		}
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dest, err)
	}

	s.logger.Info("snapshot restored", "snapshot", ref, "path", dest)
	fmt.Fprintf(s.out, "Restored %s to %s\n", ref, dest)
	return nil
}

func (s *Service) findTarget(ref string) (BackupTarget, string, error) {
	if len(s.backups) == 0 {
		return nil, "", fmt.Errorf("no backup targets configured")
	}
	name, key, ok := strings.Cut(ref, ":")
	if !ok {
		return s.backups[0], ref, nil
	}
	for _, t := range s.backups {
		if t.Name() == name {
			return t, key, nil
		}
	}
	return nil, "", fmt.Errorf("backup target %q: %w", name, errors.ErrNotFound)
}
