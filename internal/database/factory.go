package database

import (
	"fmt"
	"path/filepath"

	"kv-go/internal/config"
	"kv-go/internal/kv"
)

// StateFileName is the database file created under the state data_dir.
const StateFileName = "kv-state.db"

// NewStateFromConfig opens the state database described by cfg.
// Type "none" returns a nil database and no error.
func NewStateFromConfig(cfg config.StateConfig, clock kv.Clock) (*StateDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite state")
		}
		return NewStateDatabase(filepath.Join(cfg.DataDir, StateFileName), clock)
	case "memory":
		return NewStateDatabase(":memory:", clock)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown state type: %s", cfg.Type)
	}
}
