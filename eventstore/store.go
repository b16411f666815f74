package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/replay-es/replay-go/eserrors"
)

// ExpectedVersion expresses the optimistic-concurrency requirement of an
// append. AnyVersion appends unconditionally at the current tail; this mode is
// race-prone under concurrent writers, see the EventStore docs.
type ExpectedVersion struct {
	version int64
	exact   bool
}

// AnyVersion appends at the current tail without a concurrency check.
func AnyVersion() ExpectedVersion { return ExpectedVersion{} }

// ExactVersion requires the stream's tail version to equal version at append
// time, checked atomically by the backend.
func ExactVersion(version int64) ExpectedVersion {
	return ExpectedVersion{version: version, exact: true}
}

// IsExact reports whether a concurrency check was requested.
func (v ExpectedVersion) IsExact() bool { return v.exact }

// Version returns the required tail version; only meaningful when IsExact.
func (v ExpectedVersion) Version() int64 { return v.version }

// String renders "any" or the required version, for error context and logs.
func (v ExpectedVersion) String() string {
	if !v.exact {
		return "any"
	}

	return fmt.Sprintf("%d", v.version)
}

// EventStore is the storage boundary. Any backend exposing an atomic
// conditional append and a filtered ordered read can serve as one.
//
// AppendEvents persists a non-empty ordered batch of events for one stream,
// assigning contiguous versions starting at tail+1 and stamping each envelope
// with the append time. When expected is exact, the backend performs an atomic
// compare-and-append: the whole batch is persisted only if the tail version
// equals the expectation, otherwise it fails with a Conflict error carrying
// stream id, expected and actual version, persisting nothing. Application-level
// read-then-write is insufficient under concurrent writers and must not be
// relied upon. A batch is never partially applied, including when the caller
// abandons the context mid-call.
//
// StreamEvents yields a lazy, single-pass, non-restartable sequence of the
// envelopes matching filter, ordered by (created_at, version) ascending, with
// payloads still raw. It honors ctx cancellation mid-stream with no side
// effects beyond what was already yielded. A backend that cannot represent a
// leaf of the filter fails the stream with an unsupported-filter error instead
// of silently ignoring the predicate.
type EventStore interface {
	AppendEvents(
		ctx context.Context,
		streamID StreamID,
		streamType string,
		metadata Metadata,
		events StorableEvents,
		expected ExpectedVersion,
	) error

	StreamEvents(ctx context.Context, filter Filter) iter.Seq2[RawEnvelope, error]
}

// StreamEventsAs streams the envelopes matching filter with payloads decoded
// to the caller's requested event type. A payload that cannot be decoded is a
// permanent deserialization error, distinct from transport errors, and ends
// the sequence.
func StreamEventsAs[E any](
	ctx context.Context,
	store EventStore,
	filter Filter,
	unmarshal EventUnmarshaler[E],
) iter.Seq2[Envelope[E], error] {

	return func(yield func(Envelope[E], error) bool) {
		for raw, err := range store.StreamEvents(ctx, filter) {
			if err != nil {
				yield(Envelope[E]{}, err)
				return
			}

			payload, decodeErr := unmarshal(raw.EventType, raw.Payload)
			if decodeErr != nil {
				yield(Envelope[E]{}, eserrors.Internal("deserializing event payload failed").
					WithOperation("StreamEventsAs").
					WithContext("event_type", raw.EventType).
					WithContext("stream_id", raw.StreamID).
					WithContext("version", raw.Version).
					WithCause(decodeErr))

				return
			}

			env := MapPayload(raw, func(json.RawMessage) E { return payload })
			if !yield(env, nil) {
				return
			}
		}
	}
}

// StreamEventsByStreamID streams one stream in order, optionally bounded by a
// version and/or timestamp lower bound (zero values mean unbounded). It is
// pure AND-composition of the leaf primitives; there is no backend-specific
// code path behind it.
func StreamEventsByStreamID[E any](
	ctx context.Context,
	store EventStore,
	id StreamID,
	afterVersion int64,
	createdAfter time.Time,
	unmarshal EventUnmarshaler[E],
) iter.Seq2[Envelope[E], error] {

	return StreamEventsAs(ctx, store, StreamQuery(id, afterVersion, createdAfter), unmarshal)
}

// BuildConcurrencyConflictError creates the structured Conflict error backends
// return on a failed compare-and-append.
func BuildConcurrencyConflictError(streamID StreamID, expected ExpectedVersion, actual int64) *eserrors.Error {
	return eserrors.Conflict("stream version mismatch").
		WithOperation("AppendEvents").
		WithContext("stream_id", streamID).
		WithContext("expected_version", expected).
		WithContext("actual_version", actual)
}

// BuildUnsupportedFilterError creates the structured error backends return for
// a filter leaf they cannot represent.
func BuildUnsupportedFilterError(op string, filter Filter) *eserrors.Error {
	return eserrors.InvalidInput("unsupported filter for this backend").
		WithOperation(op).
		WithContext("filter", fmt.Sprintf("%T", filter))
}
