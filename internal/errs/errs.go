// Package errs defines Memoric's stable error kinds (spec.md §7). Kinds are
// identifiers a caller can switch on without depending on Go error types,
// mirroring the teacher's registry/store typed-error shape but generalized
// to the kinds the core spec names.
package errs

import "errors"

// Kind is a stable, language-neutral error identifier.
type Kind string

const (
	InvalidArgument  Kind = "InvalidArgument"
	NotFound         Kind = "NotFound"
	StorageConflict  Kind = "StorageConflict"
	ScopeUnauthorized Kind = "ScopeUnauthorized"
	Timeout          Kind = "Timeout"
	DependencyFailure Kind = "DependencyFailure"
	Internal         Kind = "Internal"
)

// Error is the typed error core operations return for classified failures;
// other failures are returned as fmt.Errorf-wrapped or raw driver errors.
// It never carries a secret, credential, or raw token (spec.md §7).
type Error struct {
	kind    Kind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf returns the Kind of the given error. Unrecognized errors map to
// Internal, so callers always get a stable identifier to switch on.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.kind
	}
	if err == nil {
		return ""
	}
	return Internal
}

// New constructs an *Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

// Convenience constructors for the common call sites.
func NewInvalidArgument(message string) *Error { return New(InvalidArgument, message) }
func NewNotFound(message string) *Error        { return New(NotFound, message) }
func NewScopeUnauthorized(message string) *Error {
	return New(ScopeUnauthorized, message)
}
func NewTimeout(message string) *Error { return New(Timeout, message) }
func WrapStorageConflict(message string, cause error) *Error {
	return Wrap(StorageConflict, message, cause)
}
func WrapDependencyFailure(message string, cause error) *Error {
	return Wrap(DependencyFailure, message, cause)
}
func WrapInternal(message string, cause error) *Error {
	return Wrap(Internal, message, cause)
}
