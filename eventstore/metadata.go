package eventstore

import (
	"encoding/json"
	"reflect"

	jsoniter "github.com/json-iterator/go"

	"github.com/replay-es/replay-go/eserrors"
)

// Metadata is the opaque structured value attached to every envelope. It holds
// a normalized JSON document; an empty Metadata renders as the JSON object {}.
type Metadata struct {
	value json.RawMessage
}

// NewMetadata serializes value into Metadata. Any value jsoniter can marshal
// is accepted; maps and structs become JSON objects with the partial-match
// semantics of Matches.
func NewMetadata(value any) (Metadata, error) {
	raw, err := jsoniter.ConfigFastest.Marshal(value)
	if err != nil {
		return Metadata{}, eserrors.Internal("serializing metadata failed").
			WithOperation("NewMetadata").
			WithCause(err)
	}

	return Metadata{value: raw}, nil
}

// MetadataFromJSON wraps already-serialized JSON. It fails on invalid JSON so
// malformed metadata never reaches storage.
func MetadataFromJSON(raw []byte) (Metadata, error) {
	if !jsoniter.ConfigFastest.Valid(raw) {
		return Metadata{}, eserrors.InvalidInput("metadata is not valid json").
			WithOperation("MetadataFromJSON")
	}

	return Metadata{value: raw}, nil
}

// JSON returns the serialized form. Empty Metadata yields {}.
func (m Metadata) JSON() json.RawMessage {
	if len(m.value) == 0 {
		return json.RawMessage(`{}`)
	}

	return m.value
}

// IsZero reports whether no metadata was ever set.
func (m Metadata) IsZero() bool { return len(m.value) == 0 }

// Matches reports whether the stored metadata m satisfies the query metadata.
//
// When both sides are JSON objects the match succeeds if every key present on
// the query side is present with an equal value on the stored side; the stored
// side may carry extra keys. For any other shape combination the two values
// must be deeply equal.
func (m Metadata) Matches(query Metadata) bool {
	var stored, queried any

	if err := jsoniter.ConfigFastest.Unmarshal(m.JSON(), &stored); err != nil {
		return false
	}

	if err := jsoniter.ConfigFastest.Unmarshal(query.JSON(), &queried); err != nil {
		return false
	}

	storedObj, storedIsObj := stored.(map[string]any)
	queriedObj, queriedIsObj := queried.(map[string]any)

	if storedIsObj && queriedIsObj {
		for key, queriedValue := range queriedObj {
			storedValue, present := storedObj[key]
			if !present || !reflect.DeepEqual(storedValue, queriedValue) {
				return false
			}
		}

		return true
	}

	return reflect.DeepEqual(stored, queried)
}
