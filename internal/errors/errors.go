// Package errors defines the error taxonomy shared by the container engine and the CLI.
// Callers match conditions with errors.Is against the sentinels below.
package errors

import (
	"errors"
	"fmt"
)

var (
	// Container lifecycle
	ErrAlreadyExists = errors.New("already exists")
	ErrNoCredentials = errors.New("no password or keyfile provided")

	// Envelope and codec
	ErrAuthFailed         = errors.New("wrong credentials or container has been tampered with")
	ErrCorrupt            = errors.New("corrupt container")
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported format version", ErrCorrupt)

	// Tree addressing
	ErrNotFound    = errors.New("not found")
	ErrInvalidPath = errors.New("invalid path")
	ErrInvalidName = errors.New("invalid name")
)

// NotFoundError reports which part of a path could not be resolved.
// What is "folder" when an intermediate folder is missing and "entry" when only the leaf is.
type NotFoundError struct {
	What string
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Path)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// FolderNotFound returns a NotFoundError for a missing folder.
func FolderNotFound(path string) *NotFoundError {
	return &NotFoundError{What: "folder", Path: path}
}

// EntryNotFound returns a NotFoundError for a missing leaf entry.
func EntryNotFound(path string) *NotFoundError {
	return &NotFoundError{What: "entry", Path: path}
}

// Corruptf returns an error wrapping ErrCorrupt with the given detail.
func Corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

// IsNotFound reports whether err is any not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthFailed reports whether err indicates wrong credentials or tampering.
func IsAuthFailed(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// IsCorrupt reports whether err indicates a structurally invalid container.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
