package cache

import (
	"fmt"
	"path/filepath"
	"strings"

	"kv-go/internal/config"
	"kv-go/internal/kv"
)

// NewCacheFromConfig creates a CredentialCache based on the cache config type.
// state backs the "sqlite" type and may be nil otherwise.
func NewCacheFromConfig(cfg config.CacheConfig, state kv.CredentialCache, logger kv.Logger) (kv.CredentialCache, error) {
	switch cfg.Type {
	case "json", "":
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultDir()
		}
		if dir == "" {
			// No runtime directory: nothing survives the process.
			return NewJSONCache("", logger), nil
		}
		name := cfg.FileName
		if name == "" {
			name = "kv-cache.json"
		}
		return NewJSONCache(filepath.Join(dir, name), logger), nil
	case "sqlite":
		if state == nil {
			return nil, fmt.Errorf("sqlite cache requires a sqlite or memory state database")
		}
		if p, ok := state.(interface{ Path() string }); ok && logger != nil && !volatile(p.Path()) {
			logger.Warn("sqlite cache stores passwords unencrypted on disk", "path", p.Path())
		}
		return state, nil
	case "memory":
		return NewMemoryCache(), nil
	case "none":
		return NopCache{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

// volatile reports whether a state database path is in memory or under the runtime dir.
func volatile(path string) bool {
	if path == ":memory:" {
		return true
	}
	dir := DefaultDir()
	if dir == "" {
		return false
	}
	return strings.HasPrefix(filepath.Clean(path), filepath.Clean(dir)+string(filepath.Separator))
}
