package backup

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"kv-go/internal/errors"
	"kv-go/internal/kv"
)

// MemoryTarget keeps snapshots in memory. Useful for testing.
// This implementation is safe for concurrent use.
type MemoryTarget struct {
	name      string
	snapshots map[string][]byte
	mu        sync.RWMutex
}

func NewMemoryTarget(name string) *MemoryTarget {
	return &MemoryTarget{name: name, snapshots: make(map[string][]byte)}
}

func (m *MemoryTarget) Name() string { return m.name }

func (m *MemoryTarget) Put(key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[key] = data
	return nil
}

func (m *MemoryTarget) Get(key string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.snapshots[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("snapshot %s: %w", key, errors.ErrNotFound)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (m *MemoryTarget) List(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.snapshots {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

var _ kv.BackupTarget = (*MemoryTarget)(nil)
