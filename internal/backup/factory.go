package backup

import (
	"fmt"

	"kv-go/internal/config"
	"kv-go/internal/kv"
)

// NewTargetFromConfig creates a BackupTarget based on the backup config type.
func NewTargetFromConfig(cfg config.BackupConfig) (kv.BackupTarget, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("backup target requires a name")
	}
	switch cfg.Type {
	case "memory":
		return NewMemoryTarget(cfg.Name), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem backup %q requires root to be set", cfg.Name)
		}
		return NewFileSystemTarget(cfg.Name, cfg.Root)
	default:
		return nil, fmt.Errorf("unknown backup type: %s", cfg.Type)
	}
}

// NewTargetsFromConfig creates every configured target. Names must be unique.
func NewTargetsFromConfig(cfgs []config.BackupConfig) ([]kv.BackupTarget, error) {
	seen := make(map[string]bool)
	targets := make([]kv.BackupTarget, 0, len(cfgs))
	for _, cfg := range cfgs {
		if seen[cfg.Name] {
			return nil, fmt.Errorf("duplicate backup target name: %s", cfg.Name)
		}
		seen[cfg.Name] = true

		t, err := NewTargetFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}
