// Package apperr holds the error taxonomy shared by the engine's components.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrOperationFailed = errors.New("operation failed")
)

// ValidationError reports malformed input. It is raised before any transaction opens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid is shorthand for building a ValidationError.
func Invalid(field, reason string, args ...any) error {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return &ValidationError{Field: field, Reason: reason}
}

// opError marks a store or infrastructure failure. Callers only learn "try again".
type opError struct {
	op  string
	err error
}

func (e *opError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *opError) Unwrap() error { return e.err }

func (e *opError) Is(target error) bool {
	return target == ErrOperationFailed
}

// OperationFailed wraps err so that errors.Is(err, ErrOperationFailed) holds.
// Errors that already carry a classification are returned unchanged.
func OperationFailed(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOperationFailed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &opError{op: op, err: err}
}
