package eventstore

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/replay-es/replay-go/eserrors"
)

// Event is the consumer-implemented contract for domain events. Each variant
// of an entity's closed event set reports a stable type tag derived from its
// variant name, used as the envelope's type tag and as the dispatch key when
// payloads are decoded back into concrete types.
type Event interface {
	EventType() string
}

// EventUnmarshaler decodes a stored payload into the caller's requested event
// type E, dispatching on the envelope's type tag. For single-struct event
// types JSONUnmarshaler is sufficient; closed variant sets implement a switch
// over their type tags (see example/bankaccount).
type EventUnmarshaler[E any] func(eventType string, payload []byte) (E, error)

// JSONUnmarshaler returns an EventUnmarshaler that ignores the type tag and
// decodes the payload directly into E.
func JSONUnmarshaler[E any]() EventUnmarshaler[E] {
	return func(_ string, payload []byte) (E, error) {
		var event E
		if err := jsoniter.ConfigFastest.Unmarshal(payload, &event); err != nil {
			return event, err
		}

		return event, nil
	}
}

// StorableEvents is an alias type for a slice of StorableEvent.
type StorableEvents = []StorableEvent

// StorableEvent is the DTO handed to EventStore.AppendEvents. It is built on
// scalars so the store stays agnostic of how domain events are implemented.
//
// While its fields are exported, it should only be constructed with
// BuildStorableEvent or StorableEventFrom so payloads are known-valid JSON.
type StorableEvent struct {
	EventType   string
	PayloadJSON []byte
}

// BuildStorableEvent validates the payload and wraps it with its type tag.
func BuildStorableEvent(eventType string, payloadJSON []byte) (StorableEvent, error) {
	if eventType == "" {
		return StorableEvent{}, eserrors.InvalidInput("event type must not be empty").
			WithOperation("BuildStorableEvent")
	}

	if !jsoniter.ConfigFastest.Valid(payloadJSON) {
		return StorableEvent{}, eserrors.InvalidInput("event payload is not valid json").
			WithOperation("BuildStorableEvent").
			WithContext("event_type", eventType)
	}

	return StorableEvent{EventType: eventType, PayloadJSON: payloadJSON}, nil
}

// StorableEventFrom serializes a domain event into a StorableEvent.
func StorableEventFrom(event Event) (StorableEvent, error) {
	payloadJSON, err := jsoniter.ConfigFastest.Marshal(event)
	if err != nil {
		return StorableEvent{}, eserrors.Internal("serializing event payload failed").
			WithOperation("StorableEventFrom").
			WithContext("event_type", event.EventType()).
			WithCause(err)
	}

	return BuildStorableEvent(event.EventType(), payloadJSON)
}

// StorableEventsFrom serializes a batch of domain events, preserving order.
func StorableEventsFrom[E Event](events []E) (StorableEvents, error) {
	storables := make(StorableEvents, 0, len(events))

	for _, event := range events {
		storable, err := StorableEventFrom(event)
		if err != nil {
			return nil, err
		}

		storables = append(storables, storable)
	}

	return storables, nil
}
