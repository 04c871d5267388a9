package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity legitimately does not exist
	// (e.g., no full text is published for an article).
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransport indicates an infrastructure failure talking to a remote API:
	// connection errors, timeouts, unexpected status codes, undecodable bodies.
	ErrTransport = errors.New("transport error")

	// ErrNoIdentifier indicates that a record has no primary identifier.
	ErrNoIdentifier = errors.New("no identifier")

	// ErrMalformedRecord indicates a local metadata file that could not be decoded.
	ErrMalformedRecord = errors.New("malformed record")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TransportError provides details about a failed call to an external API.
// StatusCode is zero when no HTTP response was received.
type TransportError struct {
	Source     string
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Source, e.Operation)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap lets callers match both the ErrTransport sentinel and the cause.
func (e *TransportError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Cause}
}

// MalformedRecordError identifies a local file that could not be decoded.
type MalformedRecordError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *MalformedRecordError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("malformed record %s", e.Path)
	}
	return fmt.Sprintf("malformed record %s: %v", e.Path, e.Cause)
}

// Unwrap lets callers match both the ErrMalformedRecord sentinel and the cause.
func (e *MalformedRecordError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrMalformedRecord}
	}
	return []error{ErrMalformedRecord, e.Cause}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewTransportError creates a new TransportError.
func NewTransportError(source, operation string, statusCode int, message string, cause error) *TransportError {
	return &TransportError{
		Source:     source,
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// NewMalformedRecordError creates a new MalformedRecordError.
func NewMalformedRecordError(path string, cause error) *MalformedRecordError {
	return &MalformedRecordError{
		Path:  path,
		Cause: cause,
	}
}

// IsTransport reports whether err is an infrastructure failure rather than a
// legitimate absence of data.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
