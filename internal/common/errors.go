// Package common defines sentinel errors and the caller-facing operation
// error shared by the upload service layers. Callers should use errors.Is
// and errors.As to match them.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Severity tells the transport layer how to present an OperationError
// without it knowing anything about the failed operation.
type Severity int

const (
	// SeverityInternal is a server-side failure (HTTP 5xx class).
	SeverityInternal Severity = iota
	// SeverityClient is a failure caused by the caller's request (HTTP 4xx class).
	SeverityClient
)

func (s Severity) String() string {
	switch s {
	case SeverityClient:
		return "client"
	default:
		return "internal"
	}
}

// OperationError is the generic failure surfaced to callers. Error() only
// returns Message; the wrapped cause stays available to errors.Is/As and to
// logs but is never rendered to the caller.
type OperationError struct {
	Op       string
	Severity Severity
	Message  string
	Err      error
}

func (e *OperationError) Error() string {
	return e.Message
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError builds an internal-severity OperationError.
func NewOperationError(op, message string, err error) *OperationError {
	return &OperationError{Op: op, Severity: SeverityInternal, Message: message, Err: err}
}
