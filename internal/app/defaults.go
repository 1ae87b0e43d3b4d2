package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the locations used when the config file does not override them.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - KV_CONFIG_PATH: config file location (default: ~/.config/kv.toml)
//   - KV_HOME: base directory for kv data (default: ~/.local/share/kv)
func GetDefaults() (Defaults, error) {
	configPath, err := envOrHome("KV_CONFIG_PATH", ".config", "kv.toml")
	if err != nil {
		return Defaults{}, err
	}
	baseDir, err := envOrHome("KV_HOME", ".local", "share", "kv")
	if err != nil {
		return Defaults{}, err
	}

	return Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// envOrHome returns the variable's value, or the path elements joined onto the home directory.
func envOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
