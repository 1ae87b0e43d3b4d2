// Package cache holds the credential side cache implementations.
package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"kv-go/internal/kv"
)

// jsonState is the on-disk layout of the JSON cache file.
type jsonState struct {
	LastDatabase string                   `json:"last_database,omitempty"`
	Databases    map[string]kv.Credential `json:"databases,omitempty"`
}

// JSONCache keeps credentials in a JSON file, normally under the user's runtime
// directory so it disappears at logout. An empty path disables persistence.
type JSONCache struct {
	path   string
	logger kv.Logger

	state  *jsonState
	stored []byte // file contents as last read or written
}

// NewJSONCache creates a cache backed by the file at path. The file is read lazily.
func NewJSONCache(path string, logger kv.Logger) *JSONCache {
	if logger == nil {
		logger = kv.NewNopLogger()
	}
	return &JSONCache{path: path, logger: logger}
}

// DefaultDir returns the directory the JSON cache lives in: $XDG_RUNTIME_DIR,
// else /run/user/<uid> when it exists. It returns "" when neither is available.
func DefaultDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	dir := fmt.Sprintf("/run/user/%d", os.Getuid())
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}

// Path returns the cache file location, or "" when persistence is disabled.
func (c *JSONCache) Path() string { return c.path }

func (c *JSONCache) Lookup(path string) (*kv.Credential, error) {
	st := c.load()
	cred, ok := st.Databases[path]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (c *JSONCache) Remember(path string, cred kv.Credential) error {
	st := c.load()
	if st.Databases == nil {
		st.Databases = make(map[string]kv.Credential)
	}
	st.Databases[path] = cred
	st.LastDatabase = path
	return c.save()
}

func (c *JSONCache) LastContainer() (string, error) {
	return c.load().LastDatabase, nil
}

// load reads the file on first use. A missing or unreadable file leaves the cache empty.
func (c *JSONCache) load() *jsonState {
	if c.state != nil {
		return c.state
	}
	c.state = &jsonState{}
	if c.path == "" {
		return c.state
	}

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return c.state
	}
	if err == nil {
		var st jsonState
		if err = json.Unmarshal(data, &st); err == nil {
			c.state = &st
			c.stored = data
			return c.state
		}
	}
	c.logger.Warn("failed to load state file", "path", c.path, "error", err)
	return c.state
}

// save writes the file only when its contents changed.
func (c *JSONCache) save() error {
	if c.path == "" {
		return nil
	}
	data, err := json.Marshal(c.state)
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	if bytes.Equal(data, c.stored) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save state file %s: %w", c.path, err)
	}
	c.stored = data
	return nil
}

var _ kv.CredentialCache = (*JSONCache)(nil)
