// Package memoryengine provides the in-memory reference backend of the event
// store, intended for tests.
//
// It ignores stream types and metadata on reads and supports exactly one
// filter shape, "stream id equals", by design: tests written against it cannot
// accidentally depend on backend-specific filter support. A single coarse
// mutex guards all streams; this is explicitly not a scalability target.
package memoryengine

import (
	"context"
	"encoding/json"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/replay-es/replay-go/eserrors"
	"github.com/replay-es/replay-go/eventstore"
)

// EventStore is the in-memory test double. The zero value is not usable;
// construct it with NewEventStore.
type EventStore struct {
	mu      sync.Mutex
	streams map[eventstore.StreamID][]eventstore.RawEnvelope
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		streams: make(map[eventstore.StreamID][]eventstore.RawEnvelope),
	}
}

// AppendEvents appends the batch to the stream's log while holding the store
// lock, so the batch is atomic and the compare-and-append is race-free.
// The current version of a stream is the length of its envelope list.
func (s *EventStore) AppendEvents(
	ctx context.Context,
	streamID eventstore.StreamID,
	_ string,
	metadata eventstore.Metadata,
	events eventstore.StorableEvents,
	expected eventstore.ExpectedVersion,
) error {

	if len(events) == 0 {
		return eserrors.InvalidInput("event batch must not be empty").
			WithOperation("AppendEvents").
			WithContext("stream_id", streamID)
	}

	if err := ctx.Err(); err != nil {
		return eserrors.Wrap(err, "AppendEvents", "append aborted")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lastVersion := int64(len(s.streams[streamID]))

	if expected.IsExact() && lastVersion != expected.Version() {
		return eventstore.BuildConcurrencyConflictError(streamID, expected, lastVersion)
	}

	appended := make([]eventstore.RawEnvelope, 0, len(events))
	now := time.Now().UTC()

	for i, event := range events {
		appended = append(appended, eventstore.RawEnvelope{
			ID:        uuid.New(),
			Payload:   json.RawMessage(event.PayloadJSON),
			StreamID:  streamID,
			EventType: event.EventType,
			Version:   lastVersion + int64(i) + 1,
			CreatedAt: now,
			Metadata:  metadata,
		})
	}

	s.streams[streamID] = append(s.streams[streamID], appended...)

	return nil
}

// StreamEvents yields the envelopes of one stream in version order. Any filter
// other than the plain "stream id equals" leaf fails with a structured
// unsupported-filter error.
func (s *EventStore) StreamEvents(
	ctx context.Context,
	filter eventstore.Filter,
) iter.Seq2[eventstore.RawEnvelope, error] {

	return func(yield func(eventstore.RawEnvelope, error) bool) {
		streamIDFilter, ok := filter.(eventstore.StreamIDFilter)
		if !ok {
			yield(eventstore.RawEnvelope{}, eventstore.BuildUnsupportedFilterError("memoryengine.StreamEvents", filter))
			return
		}

		s.mu.Lock()
		envelopes := make([]eventstore.RawEnvelope, len(s.streams[streamIDFilter.StreamID]))
		copy(envelopes, s.streams[streamIDFilter.StreamID])
		s.mu.Unlock()

		for _, env := range envelopes {
			if ctx.Err() != nil {
				yield(eventstore.RawEnvelope{}, eserrors.Wrap(ctx.Err(), "memoryengine.StreamEvents", "stream aborted"))
				return
			}

			if !yield(env, nil) {
				return
			}
		}
	}
}

var _ eventstore.EventStore = (*EventStore)(nil)
