package cqrs

import (
	"context"
	"time"

	"github.com/replay-es/replay-go/eserrors"
	"github.com/replay-es/replay-go/eventstore"
)

// Aggregate is the consumer contract for command-handling entities. A is
// always a pointer type: Apply mutates the entity in place as events are
// folded, and Handle validates a command against the current state without
// mutating it.
//
// Handle returns the events the command produces, or an error when the
// command must be rejected. A rejection, business-rule or otherwise, never
// reaches storage.
type Aggregate[E eventstore.Event, C any, S any] interface {
	Apply(event E)
	Handle(ctx context.Context, command C, services S) ([]E, error)
}

// AggregateType carries the static shape of one aggregate: its stream type,
// the stream id namespace its entities live in, the constructor for a fresh
// identity value, and the event decoder.
type AggregateType[A Aggregate[E, C, S], E eventstore.Event, C any, S any] struct {
	// StreamType groups the aggregate's streams for stream-type filters.
	StreamType string

	// Namespace is the required namespace of every stream id handled by this
	// aggregate. Ids from other namespaces are rejected before storage is
	// touched.
	Namespace string

	// New creates the identity value events are folded into.
	New func(id eventstore.StreamID) A

	// Unmarshal decodes stored payloads back into the aggregate's event type.
	Unmarshal eventstore.EventUnmarshaler[E]
}

// Handler orchestrates the command side for one aggregate type: replaying
// entities from their streams and executing commands with optimistic
// concurrency. It is stateless and safe for concurrent use; entity state only
// ever lives in the replayed values it returns.
type Handler[A Aggregate[E, C, S], E eventstore.Event, C any, S any] struct {
	store eventstore.EventStore
	typ   AggregateType[A, E, C, S]
}

// NewHandler creates a Handler for the given aggregate type on the given
// store.
func NewHandler[A Aggregate[E, C, S], E eventstore.Event, C any, S any](
	store eventstore.EventStore,
	typ AggregateType[A, E, C, S],
) (*Handler[A, E, C, S], error) {

	if store == nil {
		return nil, eserrors.InvalidInput("event store must not be nil").
			WithOperation("cqrs.NewHandler")
	}

	if typ.StreamType == "" || typ.Namespace == "" || typ.New == nil || typ.Unmarshal == nil {
		return nil, eserrors.InvalidInput("aggregate type is incomplete").
			WithOperation("cqrs.NewHandler").
			WithContext("stream_type", typ.StreamType).
			WithContext("namespace", typ.Namespace)
	}

	return &Handler[A, E, C, S]{store: store, typ: typ}, nil
}

// Replay rebuilds an entity by folding its stream, in order, into a fresh
// identity value. A non-zero afterVersion or createdAfter bounds the replay
// from below, for callers that fold on top of a snapshot they manage
// themselves. The returned version is the last folded event's version, or
// afterVersion when nothing matched; a stream with no events at all replays
// to the identity value without error.
func (h *Handler[A, E, C, S]) Replay(
	ctx context.Context,
	id eventstore.StreamID,
	afterVersion int64,
	createdAfter time.Time,
) (A, int64, error) {

	var zero A

	if err := h.checkNamespace(id, "cqrs.Replay"); err != nil {
		return zero, 0, err
	}

	entity := h.typ.New(id)
	version := afterVersion

	for envelope, err := range eventstore.StreamEventsByStreamID(ctx, h.store, id, afterVersion, createdAfter, h.typ.Unmarshal) {
		if err != nil {
			return zero, 0, eserrors.Wrap(err, "cqrs.Replay", "replaying stream failed").
				WithContext("stream_id", id)
		}

		entity.Apply(envelope.Payload)
		version = envelope.Version
	}

	return entity, version, nil
}

// Load rebuilds an entity from its full stream.
func (h *Handler[A, E, C, S]) Load(ctx context.Context, id eventstore.StreamID) (A, int64, error) {
	return h.Replay(ctx, id, 0, time.Time{})
}

// Execute runs one command against the entity's current state: replay the
// full stream, let the aggregate decide, append the resulting events, fold
// them into the entity and return it.
//
// When expected is exact the replayed tail version must equal it, otherwise
// Execute fails with a Conflict before the command is handled; the append
// then re-checks the same expectation atomically inside the store, so a
// concurrent writer between replay and append still cannot sneak in. With
// AnyVersion the append is unconditional and last-writer-wins applies.
//
// A command that produces no events is a successful no-op. Errors from
// Handle are returned unchanged; storage errors are wrapped with the
// operation and stream id, keeping conflicts detectable via
// eserrors.IsConflict.
func (h *Handler[A, E, C, S]) Execute(
	ctx context.Context,
	id eventstore.StreamID,
	metadata eventstore.Metadata,
	command C,
	services S,
	expected eventstore.ExpectedVersion,
) (A, error) {

	var zero A

	entity, tailVersion, replayErr := h.Load(ctx, id)
	if replayErr != nil {
		return zero, replayErr
	}

	if expected.IsExact() && expected.Version() != tailVersion {
		return zero, eventstore.BuildConcurrencyConflictError(id, expected, tailVersion)
	}

	events, handleErr := entity.Handle(ctx, command, services)
	if handleErr != nil {
		return zero, handleErr
	}

	if len(events) == 0 {
		return entity, nil
	}

	storables, convertErr := eventstore.StorableEventsFrom(events)
	if convertErr != nil {
		return zero, convertErr
	}

	appendErr := h.store.AppendEvents(ctx, id, h.typ.StreamType, metadata, storables, expected)
	if appendErr != nil {
		return zero, eserrors.Wrap(appendErr, "cqrs.Execute", "appending command events failed").
			WithContext("stream_id", id).
			WithContext("command", command)
	}

	for _, event := range events {
		entity.Apply(event)
	}

	return entity, nil
}

func (h *Handler[A, E, C, S]) checkNamespace(id eventstore.StreamID, op string) error {
	if id.Namespace() != h.typ.Namespace {
		return eserrors.InvalidInput("stream id namespace does not match the aggregate type").
			WithOperation(op).
			WithContext("stream_id", id).
			WithContext("expected_namespace", h.typ.Namespace)
	}

	return nil
}

// Query is the consumer contract for streaming projections: a filter that
// selects the relevant envelopes and an Update fold that absorbs them one at
// a time. Implementations accumulate whatever read-model state they need.
type Query[E any] interface {
	Filter() eventstore.Filter
	Update(envelope eventstore.Envelope[E])
}

// RunQuery streams the envelopes matching the query's filter through its
// Update fold. The result set is never buffered; memory stays flat however
// large the selection is. The first storage or decode error aborts the run
// with the query partially updated.
func RunQuery[E any](
	ctx context.Context,
	store eventstore.EventStore,
	unmarshal eventstore.EventUnmarshaler[E],
	query Query[E],
) error {

	for envelope, err := range eventstore.StreamEventsAs(ctx, store, query.Filter(), unmarshal) {
		if err != nil {
			return eserrors.Wrap(err, "cqrs.RunQuery", "streaming query events failed")
		}

		query.Update(envelope)
	}

	return nil
}
