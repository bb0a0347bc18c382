// Package failure defines the error taxonomy shared by the compilers and the
// backend executors.
//
// Compile-time errors (Unsupported, InvalidID) are deterministic: identical
// input always yields the identical code and construct. Execution errors
// (Backend) wrap the client error without losing it.
package failure

import (
	"errors"
	"fmt"
)

// Code categorizes an Error.
type Code string

const (
	// CodeUnsupported indicates a relational construct with no backend equivalent.
	CodeUnsupported Code = "UNSUPPORTED"

	// CodeInvalidID indicates an id predicate whose value shape the backend cannot accept.
	CodeInvalidID Code = "INVALID_ID"

	// CodeBackend indicates a failure reported by the backend client.
	CodeBackend Code = "BACKEND_ERROR"
)

// BackendKind refines CodeBackend errors.
type BackendKind string

const (
	KindUnknown             BackendKind = "UNKNOWN"
	KindNotFound            BackendKind = "NOT_FOUND"
	KindConstraintViolation BackendKind = "CONSTRAINT_VIOLATION"
	KindMalformedFilter     BackendKind = "MALFORMED_FILTER"
	KindUnavailable         BackendKind = "UNAVAILABLE"
	KindBadArgument         BackendKind = "BAD_ARGUMENT"
)

// Error is the single error type surfaced by this module.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Construct names the offending relational construct (Unsupported)
	// or predicate (InvalidID).
	Construct string

	// Kind refines backend errors.
	Kind BackendKind

	// Backend names the backend that failed ("vector", "graph").
	Backend string

	// Cause is the wrapped backend error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Code {
	case CodeBackend:
		if e.Cause != nil {
			return fmt.Sprintf("%s(%s/%s): %v", e.Code, e.Backend, e.Kind, e.Cause)
		}
		return fmt.Sprintf("%s(%s/%s)", e.Code, e.Backend, e.Kind)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Construct)
	}
}

// Unwrap exposes the backend cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Unsupported creates a compile error for a construct the target cannot express.
func Unsupported(construct string) *Error {
	return &Error{Code: CodeUnsupported, Construct: construct}
}

// Unsupportedf is Unsupported with a formatted construct description.
func Unsupportedf(format string, args ...any) *Error {
	return Unsupported(fmt.Sprintf(format, args...))
}

// InvalidID creates a compile error for an unusable id predicate.
func InvalidID(predicate string) *Error {
	return &Error{Code: CodeInvalidID, Construct: predicate}
}

// Backend wraps a backend client failure.
func Backend(backend string, kind BackendKind, cause error) *Error {
	return &Error{Code: CodeBackend, Backend: backend, Kind: kind, Cause: cause}
}

// As extracts the *Error from err, following wraps.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsUnsupported returns true if err is an Unsupported compile error.
func IsUnsupported(err error) bool {
	fe, ok := As(err)
	return ok && fe.Code == CodeUnsupported
}

// IsInvalidID returns true if err is an InvalidID compile error.
func IsInvalidID(err error) bool {
	fe, ok := As(err)
	return ok && fe.Code == CodeInvalidID
}

// IsBackend returns true if err is a backend execution error.
func IsBackend(err error) bool {
	fe, ok := As(err)
	return ok && fe.Code == CodeBackend
}

// KindOf returns the backend kind of err, or KindUnknown.
func KindOf(err error) BackendKind {
	fe, ok := As(err)
	if !ok || fe.Code != CodeBackend {
		return KindUnknown
	}
	return fe.Kind
}
