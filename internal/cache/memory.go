package cache

import (
	"sync"

	"kv-go/internal/kv"
)

// MemoryCache is an in-process CredentialCache. Useful for testing.
type MemoryCache struct {
	mu    sync.RWMutex
	creds map[string]kv.Credential
	last  string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{creds: make(map[string]kv.Credential)}
}

func (c *MemoryCache) Lookup(path string) (*kv.Credential, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cred, ok := c.creds[path]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (c *MemoryCache) Remember(path string, cred kv.Credential) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.creds[path] = cred
	c.last = path
	return nil
}

func (c *MemoryCache) LastContainer() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, nil
}

// NopCache remembers nothing.
type NopCache struct{}

func (NopCache) Lookup(string) (*kv.Credential, error) { return nil, nil }
func (NopCache) Remember(string, kv.Credential) error  { return nil }
func (NopCache) LastContainer() (string, error)        { return "", nil }

var (
	_ kv.CredentialCache = (*MemoryCache)(nil)
	_ kv.CredentialCache = NopCache{}
)
