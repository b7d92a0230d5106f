// Package apperr holds the error taxonomy shared by storage, AI and API layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrAIService  = errors.New("ai service error")
	ErrStorage    = errors.New("storage error")
)

// NotFoundError names the missing resource. It matches ErrNotFound.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found (id: %s)", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ProjectNotFound returns a NotFoundError for a project id.
func ProjectNotFound(id string) error {
	return &NotFoundError{Resource: "project", ID: id}
}

// BlockNotFound returns a NotFoundError for a block id.
func BlockNotFound(id string) error {
	return &NotFoundError{Resource: "block", ID: id}
}

// ValidationError carries a client-facing message. It matches ErrValidation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid returns a ValidationError with a formatted message.
func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Storage wraps a backend failure so callers can match ErrStorage.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStorage, err))
}
