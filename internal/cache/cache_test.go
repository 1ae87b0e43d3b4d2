package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kv-go/internal/config"
	"kv-go/internal/kv"
)

type warnRecorder struct {
	kv.NopLogger
	warnings []string
}

func (r *warnRecorder) Warn(msg string, _ ...any) { r.warnings = append(r.warnings, msg) }

func TestJSONCache_RememberAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv-cache.json")

	c := NewJSONCache(path, nil)
	if got, err := c.Lookup("/a.kdbx"); err != nil || got != nil {
		t.Fatalf("Lookup() on missing file = %+v, %v; want nil, nil", got, err)
	}
	if err := c.Remember("/a.kdbx", kv.Credential{Password: "secret", Keyfile: "/k"}); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("cache file mode = %o, want 600", perm)
	}

	data, _ := os.ReadFile(path)
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("cache file is not JSON: %v", err)
	}
	if raw["last_database"] != "/a.kdbx" {
		t.Errorf("last_database = %v, want /a.kdbx", raw["last_database"])
	}

	reloaded := NewJSONCache(path, nil)
	got, err := reloaded.Lookup("/a.kdbx")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got == nil || got.Password != "secret" || got.Keyfile != "/k" {
		t.Errorf("Lookup() = %+v, want password secret and keyfile /k", got)
	}
	if last, _ := reloaded.LastContainer(); last != "/a.kdbx" {
		t.Errorf("LastContainer() = %q, want /a.kdbx", last)
	}
}

func TestJSONCache_WritesOnlyOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv-cache.json")
	c := NewJSONCache(path, nil)

	if err := c.Remember("/a.kdbx", kv.Credential{Password: "pw"}); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	if err := c.Remember("/a.kdbx", kv.Credential{Password: "pw"}); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	info, _ := os.Stat(path)
	if !info.ModTime().Equal(old) {
		t.Error("unchanged Remember() rewrote the cache file")
	}

	if err := c.Remember("/a.kdbx", kv.Credential{Password: "other"}); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	info, _ = os.Stat(path)
	if info.ModTime().Equal(old) {
		t.Error("changed Remember() did not rewrite the cache file")
	}
}

func TestJSONCache_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv-cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	logger := &warnRecorder{}
	c := NewJSONCache(path, logger)

	got, err := c.Lookup("/a.kdbx")
	if err != nil || got != nil {
		t.Errorf("Lookup() = %+v, %v; want nil, nil", got, err)
	}
	if len(logger.warnings) != 1 || logger.warnings[0] != "failed to load state file" {
		t.Errorf("warnings = %v, want one load failure", logger.warnings)
	}

	// The broken file is replaced on the next change.
	if err := c.Remember("/a.kdbx", kv.Credential{Password: "pw"}); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if got, _ := NewJSONCache(path, nil).Lookup("/a.kdbx"); got == nil || got.Password != "pw" {
		t.Errorf("Lookup() after rewrite = %+v", got)
	}
}

func TestJSONCache_Disabled(t *testing.T) {
	c := NewJSONCache("", nil)
	if err := c.Remember("/a.kdbx", kv.Credential{Password: "pw"}); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	// Values still live for the rest of the process.
	if got, _ := c.Lookup("/a.kdbx"); got == nil || got.Password != "pw" {
		t.Errorf("Lookup() = %+v, want in-process value", got)
	}
}

func TestDefaultDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	if got := DefaultDir(); got != dir {
		t.Errorf("DefaultDir() = %q, want %q", got, dir)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	if last, _ := c.LastContainer(); last != "" {
		t.Errorf("LastContainer() = %q, want empty", last)
	}
	c.Remember("/a", kv.Credential{Password: "1"})
	c.Remember("/b", kv.Credential{Password: "2"})

	if got, _ := c.Lookup("/a"); got == nil || got.Password != "1" {
		t.Errorf("Lookup(/a) = %+v", got)
	}
	if last, _ := c.LastContainer(); last != "/b" {
		t.Errorf("LastContainer() = %q, want /b", last)
	}

	// Lookup returns a copy.
	got, _ := c.Lookup("/a")
	got.Password = "changed"
	if again, _ := c.Lookup("/a"); again.Password != "1" {
		t.Error("mutating a looked up credential changed the cache")
	}
}

type pathCache struct {
	*MemoryCache
	path string
}

func (c pathCache) Path() string { return c.path }

func TestNewCacheFromConfig_WarnsOnPersistentSQLite(t *testing.T) {
	runtime := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtime)

	tests := []struct {
		name     string
		path     string
		wantWarn bool
	}{
		{name: "base dir", path: filepath.Join(t.TempDir(), "kv-state.db"), wantWarn: true},
		{name: "runtime dir", path: filepath.Join(runtime, "kv", "kv-state.db"), wantWarn: false},
		{name: "in memory", path: ":memory:", wantWarn: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &warnRecorder{}
			state := pathCache{MemoryCache: NewMemoryCache(), path: tt.path}
			if _, err := NewCacheFromConfig(config.CacheConfig{Type: "sqlite"}, state, logger); err != nil {
				t.Fatalf("NewCacheFromConfig() error = %v", err)
			}
			if got := len(logger.warnings) > 0; got != tt.wantWarn {
				t.Errorf("warned = %v (%v), want %v", got, logger.warnings, tt.wantWarn)
			}
		})
	}
}

func TestNewCacheFromConfig(t *testing.T) {
	state := NewMemoryCache()

	tests := []struct {
		name    string
		cfg     config.CacheConfig
		state   kv.CredentialCache
		want    string
		wantErr bool
	}{
		{name: "json", cfg: config.CacheConfig{Type: "json", FileName: "c.json", Dir: "/tmp/x"}, want: "json"},
		{name: "sqlite", cfg: config.CacheConfig{Type: "sqlite"}, state: state, want: "state"},
		{name: "sqlite without state", cfg: config.CacheConfig{Type: "sqlite"}, wantErr: true},
		{name: "memory", cfg: config.CacheConfig{Type: "memory"}, want: "memory"},
		{name: "none", cfg: config.CacheConfig{Type: "none"}, want: "none"},
		{name: "unknown", cfg: config.CacheConfig{Type: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewCacheFromConfig(tt.cfg, tt.state, nil)
			if tt.wantErr {
				if err == nil {
					t.Error("NewCacheFromConfig() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCacheFromConfig() error = %v", err)
			}

			switch c := got.(type) {
			case *JSONCache:
				if tt.want != "json" || c.Path() != "/tmp/x/c.json" {
					t.Errorf("got JSONCache at %q, want %s", c.Path(), tt.want)
				}
			case *MemoryCache:
				if tt.want == "state" && c != state {
					t.Error("sqlite type did not return the state cache")
				}
				if tt.want != "memory" && tt.want != "state" {
					t.Errorf("got MemoryCache, want %s", tt.want)
				}
			case NopCache:
				if tt.want != "none" {
					t.Errorf("got NopCache, want %s", tt.want)
				}
			default:
				t.Errorf("unexpected cache type %T", got)
			}
		})
	}
}
