package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for kv.
type Config struct {
	BaseDir   string         `toml:"base_dir"`
	LogDir    string         `toml:"log_dir"`
	KDF       KDFConfig      `toml:"kdf"`
	Passwords PasswordConfig `toml:"passwords"`
	Cache     CacheConfig    `toml:"cache"`
	State     StateConfig    `toml:"state"`
	Backups   []BackupConfig `toml:"backups"`
}

// KDFConfig holds the argon2id cost used when creating containers.
// Existing containers always use the parameters stored in their header.
type KDFConfig struct {
	Time      uint32 `toml:"time"`
	MemoryKiB uint32 `toml:"memory_kib"`
	Threads   uint8  `toml:"threads"`
}

// PasswordConfig controls generated passwords.
type PasswordConfig struct {
	Length  int  `toml:"length"`
	Symbols bool `toml:"symbols"`
}

// CacheConfig represents configuration for the credential side cache.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
// Both "json" and "sqlite" keep passwords in plaintext; "sqlite" lives in the state data_dir,
// which unlike the runtime dir survives reboots.
type CacheConfig struct {
	Type     string `toml:"type"`                // "json", "sqlite", "memory" or "none"
	FileName string `toml:"file_name,omitempty"` // only used for type=json
	Dir      string `toml:"dir,omitempty"`       // only used for type=json; defaults to the runtime dir
}

// StateConfig represents configuration for the state database holding operation history
// and, when the cache type is "sqlite", remembered credentials.
type StateConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "none"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// BackupConfig represents configuration for a backup target.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BackupConfig struct {
	Type string `toml:"type"` // "filesystem" or "memory"
	Name string `toml:"name"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	Root string `toml:"root,omitempty"`
}

// NewConfig creates a new Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		KDF: KDFConfig{
			Time:      3,
			MemoryKiB: 64 * 1024,
			Threads:   4,
		},
		Passwords: PasswordConfig{Length: 32, Symbols: true},
		Cache:     CacheConfig{Type: "json", FileName: "kv-cache.json"},
		State:     StateConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "state")},
	}
}

// fillDefaults sets every zero-valued field that NewConfig would set.
func (c *Config) fillDefaults(baseDir string) {
	if c.BaseDir == "" {
		c.BaseDir = baseDir
	}
	d := NewConfig(c.BaseDir)
	if c.LogDir == "" {
		c.LogDir = d.LogDir
	}
	if c.KDF.Time == 0 {
		c.KDF.Time = d.KDF.Time
	}
	if c.KDF.MemoryKiB == 0 {
		c.KDF.MemoryKiB = d.KDF.MemoryKiB
	}
	if c.KDF.Threads == 0 {
		c.KDF.Threads = d.KDF.Threads
	}
	if c.Passwords.Length == 0 {
		c.Passwords = d.Passwords
	}
	if c.Cache.Type == "" {
		c.Cache.Type = d.Cache.Type
	}
	if c.Cache.FileName == "" {
		c.Cache.FileName = d.Cache.FileName
	}
	if c.State.Type == "" {
		c.State = d.State
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config at path, falling back to defaults under baseDir when the
// file does not exist. Missing fields are filled with defaults either way.
func Load(path, baseDir string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if err != nil {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			return nil, err
		}
		cfg = &Config{}
	}
	cfg.fillDefaults(baseDir)
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
