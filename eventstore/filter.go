package eventstore

import (
	"slices"
	"time"
)

// Filter is a boolean predicate tree over envelope attributes. The same tree
// is either evaluated in memory with Passes or compiled by a query-capable
// backend into a parameterized query fragment.
//
// The variant set is closed: backends compile filters with a type switch over
// the exported leaf and combinator structs, and must fail with a structured
// unsupported-filter error for any leaf they cannot represent.
type Filter interface {
	// Passes evaluates the predicate against one candidate envelope. The
	// stream type of the envelope's stream is supplied by the caller since
	// envelopes do not carry it. Evaluation is pure, total and uses native
	// short-circuit semantics for AND/OR.
	Passes(env RawEnvelope, streamType string) bool

	sealedFilter()
}

/***** Leaves *****/

// AllFilter matches every envelope. It is the default filter.
type AllFilter struct{}

// StreamIDFilter matches envelopes of exactly one stream.
type StreamIDFilter struct {
	StreamID StreamID
}

// StreamTypesFilter matches envelopes whose stream belongs to any of the given
// stream types.
type StreamTypesFilter struct {
	StreamTypes []string
}

// MetadataFilter matches envelopes whose stored metadata matches the query
// metadata (subset containment for objects, equality otherwise).
type MetadataFilter struct {
	Metadata Metadata
}

// AfterVersionFilter matches envelopes with a version strictly greater than Version.
type AfterVersionFilter struct {
	Version int64
}

// CreatedAfterFilter matches envelopes created strictly after After.
type CreatedAfterFilter struct {
	After time.Time
}

/***** Combinators *****/

// AndFilter matches when both sides match.
type AndFilter struct {
	Left  Filter
	Right Filter
}

// OrFilter matches when either side matches.
type OrFilter struct {
	Left  Filter
	Right Filter
}

// NotFilter matches when the inner filter does not.
type NotFilter struct {
	Inner Filter
}

/***** Constructors *****/

// MatchAll creates the match-everything filter.
func MatchAll() Filter { return AllFilter{} }

// WithStreamID creates a filter matching one stream.
func WithStreamID(id StreamID) Filter { return StreamIDFilter{StreamID: id} }

// ForStreamTypes creates a set-membership filter over stream types. The input
// is sanitized: empty entries are removed, the rest sorted and deduplicated.
func ForStreamTypes(streamType string, streamTypes ...string) Filter {
	all := append([]string{streamType}, streamTypes...)
	all = slices.DeleteFunc(all, func(s string) bool { return s == "" })
	slices.Sort(all)
	all = slices.Compact(all)
	all = slices.Clip(all)

	return StreamTypesFilter{StreamTypes: all}
}

// WithMetadata creates a metadata-match filter.
func WithMetadata(metadata Metadata) Filter { return MetadataFilter{Metadata: metadata} }

// AfterVersion creates a version lower-bound filter (exclusive).
func AfterVersion(version int64) Filter { return AfterVersionFilter{Version: version} }

// CreatedAfter creates a timestamp lower-bound filter (exclusive).
func CreatedAfter(after time.Time) Filter { return CreatedAfterFilter{After: after} }

// And combines two filters; both must match.
func And(left, right Filter) Filter { return AndFilter{Left: left, Right: right} }

// Or combines two filters; either may match.
func Or(left, right Filter) Filter { return OrFilter{Left: left, Right: right} }

// Not negates a filter.
func Not(inner Filter) Filter { return NotFilter{Inner: inner} }

// StreamQuery composes the common "one stream, optionally bounded" read filter
// purely from the leaf primitives. A zero afterVersion or zero createdAfter
// leaves the respective bound off.
func StreamQuery(id StreamID, afterVersion int64, createdAfter time.Time) Filter {
	filter := WithStreamID(id)

	if afterVersion > 0 {
		filter = And(filter, AfterVersion(afterVersion))
	}

	if !createdAfter.IsZero() {
		filter = And(filter, CreatedAfter(createdAfter))
	}

	return filter
}

/***** In-memory evaluation *****/

func (AllFilter) Passes(RawEnvelope, string) bool { return true }

func (f StreamIDFilter) Passes(env RawEnvelope, _ string) bool {
	return env.StreamID == f.StreamID
}

func (f StreamTypesFilter) Passes(_ RawEnvelope, streamType string) bool {
	return slices.Contains(f.StreamTypes, streamType)
}

func (f MetadataFilter) Passes(env RawEnvelope, _ string) bool {
	return env.Metadata.Matches(f.Metadata)
}

func (f AfterVersionFilter) Passes(env RawEnvelope, _ string) bool {
	return env.Version > f.Version
}

func (f CreatedAfterFilter) Passes(env RawEnvelope, _ string) bool {
	return env.CreatedAt.After(f.After)
}

func (f AndFilter) Passes(env RawEnvelope, streamType string) bool {
	return f.Left.Passes(env, streamType) && f.Right.Passes(env, streamType)
}

func (f OrFilter) Passes(env RawEnvelope, streamType string) bool {
	return f.Left.Passes(env, streamType) || f.Right.Passes(env, streamType)
}

func (f NotFilter) Passes(env RawEnvelope, streamType string) bool {
	return !f.Inner.Passes(env, streamType)
}

func (AllFilter) sealedFilter()          {}
func (StreamIDFilter) sealedFilter()     {}
func (StreamTypesFilter) sealedFilter()  {}
func (MetadataFilter) sealedFilter()     {}
func (AfterVersionFilter) sealedFilter() {}
func (CreatedAfterFilter) sealedFilter() {}
func (AndFilter) sealedFilter()          {}
func (OrFilter) sealedFilter()           {}
func (NotFilter) sealedFilter()          {}
