package kv

import (
	"fmt"
	"time"
)

// Operation is one recorded CLI invocation.
type Operation struct {
	ID         int64
	Command    string
	Parameters string
	Container  string
	Status     string // "running", "success" or "error"
	StartedAt  time.Time
	FinishedAt *time.Time
}

// History records CLI operations.
type History interface {
	// Start records a new running operation and returns its id.
	Start(command, parameters, container string) (int64, error)

	// Finish marks an operation as done with the given status.
	Finish(id int64, status string) error

	// Recent returns up to limit operations, newest first.
	Recent(limit int) ([]*Operation, error)
}

// GetHistory returns the most recent operations, newest first.
func (s *Service) GetHistory(limit int) ([]*Operation, error) {
	if s.history == nil {
		return nil, fmt.Errorf("operation history is disabled")
	}
	ops, err := s.history.Recent(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
