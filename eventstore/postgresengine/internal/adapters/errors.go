package adapters

import (
	"fmt"
)

const (
	// sqlstateSerializationFailure is raised by append_event on a version mismatch.
	sqlstateSerializationFailure = "40001"

	// sqlstateUniqueViolation fires when two transactions race past the stream
	// lock; the unique (stream_id, version) constraint is the backstop.
	sqlstateUniqueViolation = "23505"
)

// ConflictError is the normalized form of a failed compare-and-append. Actual
// is negative when the database could not report the tail version (the
// unique-constraint backstop path).
type ConflictError struct {
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict: expected version %d, actual %d", e.Expected, e.Actual)
}

// conflictFromSQLState maps a driver error's SQLSTATE and DETAIL field to a
// *ConflictError, or returns nil when the error is not a conflict.
func conflictFromSQLState(code, detail string) *ConflictError {
	switch code {
	case sqlstateSerializationFailure:
		conflict := &ConflictError{Expected: -1, Actual: -1}

		// DETAIL is produced by append_event as "expected=<n> actual=<n>".
		fmt.Sscanf(detail, "expected=%d actual=%d", &conflict.Expected, &conflict.Actual) //nolint:errcheck

		return conflict

	case sqlstateUniqueViolation:
		return &ConflictError{Expected: -1, Actual: -1}

	default:
		return nil
	}
}
