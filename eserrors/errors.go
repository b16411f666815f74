// Package eserrors defines the error model shared by the event store and the
// cqrs orchestration layer.
//
// Errors are categorized by what the caller can do about them (Kind), not by
// where they came from, and carry an explicit retry verdict (Status). Every
// error records the logical operation, ordered key/value context for
// debugging, the creation site, and an optional chained cause which is
// preserved rather than flattened.
package eserrors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind categorizes an error by the action the caller should take.
type Kind uint8

const (
	// KindNotFound means the requested resource does not exist. Don't retry.
	KindNotFound Kind = iota

	// KindInvalidInput means validation failed. Don't retry without fixing the input.
	KindInvalidInput

	// KindConflict means an optimistic concurrency check failed. Safe to retry after a re-fetch.
	KindConflict

	// KindUnavailable means an external dependency is temporarily down. Safe to retry.
	KindUnavailable

	// KindInternal means serialization, deserialization or another unexpected
	// failure. Don't retry without investigation.
	KindInternal

	// KindBusinessRuleViolation means the decision function rejected the
	// command. Don't retry without changing the request.
	KindBusinessRuleViolation

	// KindUnauthorized means authentication is required but missing or invalid.
	KindUnauthorized

	// KindForbidden means the authenticated caller lacks permission.
	KindForbidden

	// KindRateLimited means too many requests. Safe to retry after a delay.
	KindRateLimited
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	case KindInternal:
		return "internal"
	case KindBusinessRuleViolation:
		return "business_rule_violation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Status is the retry verdict attached to an error.
type Status uint8

const (
	// Permanent errors are not worth retrying.
	Permanent Status = iota

	// Temporary errors are safe to retry.
	Temporary

	// Persistent errors were retried and are still failing; escalate or give up.
	Persistent
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case Permanent:
		return "permanent"
	case Temporary:
		return "temporary"
	case Persistent:
		return "persistent"
	default:
		return "unknown"
	}
}

// Field is one ordered key/value context pair attached to an Error.
type Field struct {
	Key   string
	Value string
}

// Error is the structured error used across the module.
//
// It should be constructed with the factory functions (NotFound, Conflict, ...)
// and enriched with the With* builders, which return the same *Error for
// chaining.
type Error struct {
	kind     Kind
	status   Status
	message  string
	op       string
	context  []Field
	cause    error
	location string
}

// New creates an Error with the given kind, status and message, capturing the
// caller's location.
func New(kind Kind, status Status, message string) *Error {
	return newError(kind, status, message)
}

func newError(kind Kind, status Status, message string) *Error {
	return &Error{
		kind:     kind,
		status:   status,
		message:  message,
		location: callerLocation(3),
	}
}

// NotFound creates a permanent not-found error.
func NotFound(message string) *Error {
	return newError(KindNotFound, Permanent, message)
}

// InvalidInput creates a permanent invalid-input error.
func InvalidInput(message string) *Error {
	return newError(KindInvalidInput, Permanent, message)
}

// Conflict creates a temporary conflict error, e.g. an optimistic concurrency
// check that failed. The caller may retry after re-fetching.
func Conflict(message string) *Error {
	return newError(KindConflict, Temporary, message)
}

// Unavailable creates a temporary unavailable error.
func Unavailable(message string) *Error {
	return newError(KindUnavailable, Temporary, message)
}

// Internal creates a permanent internal error.
func Internal(message string) *Error {
	return newError(KindInternal, Permanent, message)
}

// BusinessRuleViolation creates a permanent business-rule error.
func BusinessRuleViolation(message string) *Error {
	return newError(KindBusinessRuleViolation, Permanent, message)
}

// Wrap builds an Error for the given operation around cause. When cause is
// itself an *Error its kind and status are preserved so classification
// survives layer crossings; any other error becomes KindInternal/Permanent.
func Wrap(cause error, op string, message string) *Error {
	kind := KindInternal
	status := Permanent

	var inner *Error
	if errors.As(cause, &inner) {
		kind = inner.kind
		status = inner.status
	}

	wrapped := newError(kind, status, message)
	wrapped.op = op
	wrapped.cause = cause

	return wrapped
}

// WithOperation sets the logical operation that was being performed.
func (e *Error) WithOperation(op string) *Error {
	e.op = op
	return e
}

// WithContext appends one key/value context pair. Values are rendered with
// fmt.Sprint so callers can pass ids, versions, durations and the like.
func (e *Error) WithContext(key string, value any) *Error {
	e.context = append(e.context, Field{Key: key, Value: fmt.Sprint(value)})
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// WithStatus overrides the retry verdict, e.g. to mark an error Persistent
// after a retry loop gave up.
func (e *Error) WithStatus(status Status) *Error {
	e.status = status
	return e
}

// Kind returns the error kind.
func (e *Error) Kind() Kind { return e.kind }

// Status returns the retry verdict.
func (e *Error) Status() Status { return e.status }

// Message returns the human-readable message without operation or context.
func (e *Error) Message() string { return e.message }

// Operation returns the logical operation name, or "" if unset.
func (e *Error) Operation() string { return e.op }

// Context returns the ordered key/value context pairs.
func (e *Error) Context() []Field { return e.context }

// Location returns the file:line where the error was created.
func (e *Error) Location() string { return e.location }

// IsTemporary reports whether the error is worth retrying.
func (e *Error) IsTemporary() bool { return e.status == Temporary }

// IsPermanent reports whether the error is not worth retrying.
func (e *Error) IsPermanent() bool { return e.status == Permanent }

// Unwrap returns the chained cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Error renders the kind, status, message, operation, context, location and
// the full caused-by chain, one finding per line.
func (e *Error) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s (%s): %s", e.kind, e.status, e.message)

	if e.op != "" {
		fmt.Fprintf(&b, "\n  operation: %s", e.op)
	}

	for _, f := range e.context {
		fmt.Fprintf(&b, "\n  %s: %s", f.Key, f.Value)
	}

	if e.location != "" {
		fmt.Fprintf(&b, "\n  location: %s", e.location)
	}

	const maxCauseDepth = 8

	cause := e.cause
	for depth := 0; cause != nil && depth < maxCauseDepth; depth++ {
		if inner, ok := cause.(*Error); ok {
			fmt.Fprintf(&b, "\n  caused by: %s (%s): %s", inner.kind, inner.status, inner.message)
			if inner.op != "" {
				fmt.Fprintf(&b, " [%s]", inner.op)
			}
			cause = inner.cause

			continue
		}

		fmt.Fprintf(&b, "\n  caused by: %s", cause.Error())
		cause = errors.Unwrap(cause)
	}

	return b.String()
}

// KindOf extracts the Kind from err, unwrapping as needed. Errors outside this
// package report KindInternal; a nil err also reports KindInternal since there
// is no meaningful kind for it.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}

	return KindInternal
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.kind == kind
}

// IsConflict reports whether err is an optimistic-concurrency conflict. Retry
// loops built on top of the orchestrator should use this to decide whether a
// re-fetch-and-retry makes sense.
func IsConflict(err error) bool {
	return IsKind(err, KindConflict)
}

// IsTemporary reports whether err is an *Error marked Temporary, meaning the
// same call may succeed if repeated.
func IsTemporary(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.status == Temporary
}

func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}

	// trim to the last two path segments to keep messages portable
	short := file
	slashes := 0
	for i := len(file) - 1; i >= 0; i-- {
		if file[i] == '/' {
			slashes++
			if slashes == 2 {
				short = file[i+1:]
				break
			}
		}
	}

	return fmt.Sprintf("%s:%d", short, line)
}
