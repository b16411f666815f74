package eventstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps one stored event. Envelopes are immutable once created; they
// are produced only by a successful append and read back by StreamEvents.
type Envelope[E any] struct {
	// ID is the random unique identity assigned at append time.
	ID uuid.UUID

	// Payload is the domain event, typed to whatever the reader requested.
	Payload E

	// StreamID is the namespaced identifier of the stream this event belongs to.
	StreamID StreamID

	// EventType is the stable type tag of the payload's variant.
	EventType string

	// Version is the 1-based, contiguous position within the stream, assigned
	// only at append time.
	Version int64

	// CreatedAt is the append timestamp.
	CreatedAt time.Time

	// Metadata is the opaque structured value stored alongside the payload.
	Metadata Metadata
}

// RawEnvelope is an envelope whose payload has not been decoded yet. It is
// what storage backends yield; StreamEventsAs decodes it into the caller's
// requested event type.
type RawEnvelope = Envelope[json.RawMessage]

// MapPayload produces a structurally identical envelope with a transformed
// payload. It is used to merge heterogeneous event types into one
// projection-level union without re-reading storage.
func MapPayload[E, O any](env Envelope[E], transform func(E) O) Envelope[O] {
	return Envelope[O]{
		ID:        env.ID,
		Payload:   transform(env.Payload),
		StreamID:  env.StreamID,
		EventType: env.EventType,
		Version:   env.Version,
		CreatedAt: env.CreatedAt,
		Metadata:  env.Metadata,
	}
}
