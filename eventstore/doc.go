// Package eventstore provides the core abstractions of the replay event
// sourcing engine: the envelope model, the composable filter algebra, and the
// storage interface implemented by the backends in the subpackages.
//
// Events are immutable domain facts persisted in per-stream ordered logs.
// Every stored event is wrapped in an Envelope carrying identity, stream id,
// type tag, a contiguous 1-based version, the append timestamp, and opaque
// metadata. Entity state is never stored; it is derived by folding a stream's
// payloads in version order.
//
// Filters form a small boolean predicate tree (leaves plus And/Or/Not) that
// can be evaluated in memory or compiled by a backend into a parameterized
// query fragment:
//
//	filter := eventstore.And(
//		eventstore.WithStreamID(id),
//		eventstore.CreatedAfter(since),
//	)
//
//	for env, err := range store.StreamEvents(ctx, filter) {
//		...
//	}
//
// Appends are conditional: with ExactVersion the backend performs an atomic
// compare-and-append and fails with a structured Conflict error on a version
// mismatch, persisting nothing.
//
// Key types:
//   - Envelope: the stored-event wrapper
//   - Filter: predicate tree over envelope attributes
//   - EventStore: the two-operation storage boundary
//   - StorableEvent: the scalar DTO handed to AppendEvents
package eventstore
