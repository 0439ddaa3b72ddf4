package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures
type ErrorKind string

const (
	// ConnectionError covers failures to establish or verify a backend
	// connection, and operations attempted before Connect succeeded
	ConnectionError ErrorKind = "connection"
	// QueryError covers failures of an operation on an open connection
	QueryError ErrorKind = "query"
	// ValidationError covers missing or malformed configuration, detected
	// before any I/O
	ValidationError ErrorKind = "validation"
)

// String returns the kind name
func (k ErrorKind) String() string {
	return string(k)
}

// Error is the single error type returned across the adapter boundary
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Cause == nil
}

// NewConnectionError creates a ConnectionError
func NewConnectionError(message string, cause error) *Error {
	return &Error{Kind: ConnectionError, Message: message, Cause: cause}
}

// NewQueryError creates a QueryError
func NewQueryError(message string, cause error) *Error {
	return &Error{Kind: QueryError, Message: message, Cause: cause}
}

// NewValidationError creates a ValidationError
func NewValidationError(message string, cause error) *Error {
	return &Error{Kind: ValidationError, Message: message, Cause: cause}
}

// Sentinel values usable with errors.Is to test the kind only
var (
	ErrConnection = &Error{Kind: ConnectionError}
	ErrQuery      = &Error{Kind: QueryError}
	ErrValidation = &Error{Kind: ValidationError}
)

// ErrNotConnected is the cause attached to operations issued before Connect
var ErrNotConnected = errors.New("adapter is not connected")

// AsError converts any error into an *Error, defaulting to the given kind.
// An error that already is (or wraps) an *Error keeps its own kind.
func AsError(err error, kind ErrorKind, message string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// IsKind reports whether err is an adapter error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
