package eventstore

import (
	"strings"

	"github.com/replay-es/replay-go/eserrors"
)

const streamIDSeparator = ":"

// StreamID identifies one event stream. It is a namespaced hierarchical
// identifier of the form "namespace:local-id", where the namespace ties the
// stream to one entity type (e.g. "account:7f3a...").
//
// The zero value is not a valid StreamID; construct one with NewStreamID or
// the Parse functions.
type StreamID struct {
	namespace string
	localID   string
}

// NewStreamID builds a StreamID from its parts. Both parts must be non-empty
// and must not contain the separator.
func NewStreamID(namespace, localID string) (StreamID, error) {
	if namespace == "" || localID == "" {
		return StreamID{}, eserrors.InvalidInput("stream id namespace and local id must not be empty").
			WithOperation("NewStreamID").
			WithContext("namespace", namespace).
			WithContext("local_id", localID)
	}

	if strings.Contains(namespace, streamIDSeparator) {
		return StreamID{}, eserrors.InvalidInput("stream id namespace must not contain the separator").
			WithOperation("NewStreamID").
			WithContext("namespace", namespace)
	}

	return StreamID{namespace: namespace, localID: localID}, nil
}

// ParseStreamID parses "namespace:local-id". The local id may itself contain
// further separators; only the first one splits namespace from local id.
func ParseStreamID(s string) (StreamID, error) {
	namespace, localID, found := strings.Cut(s, streamIDSeparator)
	if !found {
		return StreamID{}, eserrors.InvalidInput("stream id must have the form namespace:local-id").
			WithOperation("ParseStreamID").
			WithContext("stream_id", s)
	}

	return NewStreamID(namespace, localID)
}

// ParseStreamIDInNamespace parses s and additionally validates that its
// namespace matches the expected entity type. A mismatched namespace is a
// permanent invalid-input error.
func ParseStreamIDInNamespace(s string, namespace string) (StreamID, error) {
	id, err := ParseStreamID(s)
	if err != nil {
		return StreamID{}, err
	}

	if id.namespace != namespace {
		return StreamID{}, eserrors.InvalidInput("stream id namespace does not match the expected entity type").
			WithOperation("ParseStreamIDInNamespace").
			WithContext("stream_id", s).
			WithContext("expected_namespace", namespace)
	}

	return id, nil
}

// Namespace returns the entity-type part of the id.
func (id StreamID) Namespace() string { return id.namespace }

// LocalID returns the per-entity part of the id.
func (id StreamID) LocalID() string { return id.localID }

// IsZero reports whether the id is the invalid zero value.
func (id StreamID) IsZero() bool { return id.namespace == "" && id.localID == "" }

// String renders the canonical "namespace:local-id" form.
func (id StreamID) String() string {
	return id.namespace + streamIDSeparator + id.localID
}
