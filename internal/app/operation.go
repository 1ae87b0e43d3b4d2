package app

// Operation tracks the CLI command being run. It is created in memory with ID=0
// and only gets an ID once it is recorded in the history.
type Operation struct {
	ID         int64
	Command    string
	Parameters string
	Status     string // "success" or "error"
}

// NewOperation creates a new in-memory operation.
func NewOperation(command, parameters string) *Operation {
	return &Operation{
		Command:    command,
		Parameters: parameters,
		Status:     "success",
	}
}

// Persisted returns true if this operation has been recorded in the history.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Record sets the final status from the command's result and passes err through.
func (op *Operation) Record(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}
