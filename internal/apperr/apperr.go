// Package apperr defines the error kinds surfaced across the control plane
// boundary. Callers match kinds with errors.Is against the sentinels and
// extract details with errors.As.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrUnsupportedEngine = errors.New("unsupported engine")
)

// NotFoundError reports a referenced tenant, executor, task or ticket that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports an entity in a disallowed state or a request that
// is not permitted.
type ValidationError struct {
	Message string
}

func Validation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UnsupportedEngineError is the ValidationError raised when an engine name
// has no registered adapter.
type UnsupportedEngineError struct {
	Engine string
}

func UnsupportedEngine(engine string) *UnsupportedEngineError {
	return &UnsupportedEngineError{Engine: engine}
}

func (e *UnsupportedEngineError) Error() string {
	return "unsupported engine: " + e.Engine
}

func (e *UnsupportedEngineError) Is(target error) bool {
	return target == ErrUnsupportedEngine || target == ErrValidation
}

func (e *UnsupportedEngineError) Unwrap() error {
	return &ValidationError{Message: e.Error()}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a ValidationError or one of its specializations.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
