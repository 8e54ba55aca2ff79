// Package errors provides the closed error taxonomy used across the
// ingestion core. Every error raised by a component carries one of a
// fixed set of Kinds; the HTTP boundary maps each Kind to exactly one
// status code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a closed enumeration of failure categories produced by the
// core. Components never invent new kinds; the HTTP boundary switches
// on Kind exhaustively.
type Kind string

const (
	// KindNotFound: resource with the given public_id does not exist.
	KindNotFound Kind = "not_found"
	// KindConflict: a uniqueness violation (duplicate name/url/version).
	KindConflict Kind = "conflict"
	// KindInvalidInput: schema or cross-field validation failed.
	KindInvalidInput Kind = "invalid_input"
	// KindUnauthorized: missing, invalid, or expired credential.
	KindUnauthorized Kind = "unauthorized"
	// KindForbidden: credential valid but lacks the required role.
	KindForbidden Kind = "forbidden"
	// KindInvalidTransition: a state-machine transition is not permitted.
	KindInvalidTransition Kind = "invalid_transition"
	// KindDependencyFailure: an external dependency (IdP, remote fetch) failed.
	KindDependencyFailure Kind = "dependency_failure"
	// KindTransient: a temporary condition; retry may succeed. Never
	// surfaced directly to an HTTP caller — retry logic consumes it.
	KindTransient Kind = "transient"
)

// httpStatusByKind is the fixed Kind → boundary status mapping from the
// error taxonomy table. KindTransient has no distinct boundary status: retry
// logic consumes it, and one that does reach the HTTP layer is reported as
// 500.
var httpStatusByKind = map[Kind]int{
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindInvalidInput:      http.StatusUnprocessableEntity,
	KindUnauthorized:      http.StatusUnauthorized,
	KindForbidden:         http.StatusForbidden,
	KindInvalidTransition: http.StatusConflict,
	KindDependencyFailure: http.StatusBadGateway,
	KindTransient:         http.StatusInternalServerError,
}

// CoreError is a structured error carrying a Kind, a human message, and
// optional structured details. It is the only error type components in
// the core raise; the HTTP boundary never inspects anything but Kind.
type CoreError struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *CoreError) Unwrap() error {
	return e.Err
}

// WithDetails attaches additional structured context, returning e for
// chaining.
func (e *CoreError) WithDetails(key string, value interface{}) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the boundary status code for this error's Kind.
func (e *CoreError) HTTPStatus() int {
	if status, ok := httpStatusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New constructs a CoreError of the given Kind.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap constructs a CoreError of the given Kind wrapping an underlying
// error.
func Wrap(kind Kind, message string, err error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Err: err}
}

// NotFound builds a KindNotFound error for the named resource.
func NotFound(resource, publicID string) *CoreError {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetails("resource", resource).
		WithDetails("public_id", publicID)
}

// Conflict builds a KindConflict error, typically a uniqueness violation.
func Conflict(message string) *CoreError {
	return New(KindConflict, message)
}

// InvalidInput builds a KindInvalidInput error for a specific field.
func InvalidInput(field, reason string) *CoreError {
	return New(KindInvalidInput, reason).WithDetails("field", field)
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(message string) *CoreError {
	return New(KindUnauthorized, message)
}

// Forbidden builds a KindForbidden error.
func Forbidden(message string) *CoreError {
	return New(KindForbidden, message)
}

// InvalidTransition builds a KindInvalidTransition error describing the
// rejected state-machine move.
func InvalidTransition(from, to string) *CoreError {
	return New(KindInvalidTransition, fmt.Sprintf("cannot transition from %q to %q", from, to)).
		WithDetails("from", from).
		WithDetails("to", to)
}

// DependencyFailure builds a KindDependencyFailure error for a failed
// external collaborator call.
func DependencyFailure(dependency string, err error) *CoreError {
	return Wrap(KindDependencyFailure, fmt.Sprintf("%s call failed", dependency), err).
		WithDetails("dependency", dependency)
}

// Transient builds a KindTransient error; callers in retry loops treat
// this as retryable, never as a final failure.
func Transient(operation string, err error) *CoreError {
	return Wrap(KindTransient, fmt.Sprintf("%s failed transiently", operation), err).
		WithDetails("operation", operation)
}

// Is reports whether err is a CoreError of the given Kind.
func Is(err error, kind Kind) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// IsNotFound reports whether err is a KindNotFound CoreError.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsConflict reports whether err is a KindConflict CoreError.
func IsConflict(err error) bool { return Is(err, KindConflict) }

// IsInvalidInput reports whether err is a KindInvalidInput CoreError.
func IsInvalidInput(err error) bool { return Is(err, KindInvalidInput) }

// As extracts a *CoreError from err's chain, if present.
func As(err error) *CoreError {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// GetHTTPStatus returns the boundary status for err, defaulting to 500
// for errors that are not CoreErrors (unknown exceptions are surfaced as
// 500 per the error handling design).
func GetHTTPStatus(err error) int {
	if ce := As(err); ce != nil {
		return ce.HTTPStatus()
	}
	return http.StatusInternalServerError
}
