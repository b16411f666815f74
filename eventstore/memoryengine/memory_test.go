package memoryengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-es/replay-go/eserrors"
	"github.com/replay-es/replay-go/eventstore"
	"github.com/replay-es/replay-go/eventstore/memoryengine"
)

func buildStreamID(t *testing.T, localID string) eventstore.StreamID {
	t.Helper()

	id, err := eventstore.NewStreamID("account", localID)
	require.NoError(t, err)

	return id
}

func buildEvents(t *testing.T, eventTypes ...string) eventstore.StorableEvents {
	t.Helper()

	events := make(eventstore.StorableEvents, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		event, err := eventstore.BuildStorableEvent(eventType, []byte(`{}`))
		require.NoError(t, err)
		events = append(events, event)
	}

	return events
}

func collect(t *testing.T, store *memoryengine.EventStore, id eventstore.StreamID) []eventstore.RawEnvelope {
	t.Helper()

	var envelopes []eventstore.RawEnvelope
	for envelope, err := range store.StreamEvents(context.Background(), eventstore.WithStreamID(id)) {
		require.NoError(t, err)
		envelopes = append(envelopes, envelope)
	}

	return envelopes
}

func Test_AppendEvents_AssignsContiguousVersions(t *testing.T) {
	store := memoryengine.NewEventStore()
	id := buildStreamID(t, "4711")
	ctx := context.Background()

	err := store.AppendEvents(ctx, id, "account", eventstore.Metadata{}, buildEvents(t, "AccountOpened", "Deposited"), eventstore.AnyVersion())
	require.NoError(t, err)

	err = store.AppendEvents(ctx, id, "account", eventstore.Metadata{}, buildEvents(t, "Withdrawn"), eventstore.ExactVersion(2))
	require.NoError(t, err)

	envelopes := collect(t, store, id)
	require.Len(t, envelopes, 3)

	for i, envelope := range envelopes {
		assert.Equal(t, int64(i+1), envelope.Version)
		assert.Equal(t, id, envelope.StreamID)
		assert.NotEqual(t, envelope.ID.String(), "00000000-0000-0000-0000-000000000000")
	}
}

func Test_AppendEvents_StaleExpectationConflictsAndPersistsNothing(t *testing.T) {
	store := memoryengine.NewEventStore()
	id := buildStreamID(t, "4711")
	ctx := context.Background()

	require.NoError(t, store.AppendEvents(ctx, id, "account", eventstore.Metadata{}, buildEvents(t, "AccountOpened"), eventstore.AnyVersion()))

	err := store.AppendEvents(ctx, id, "account", eventstore.Metadata{}, buildEvents(t, "Deposited", "Withdrawn"), eventstore.ExactVersion(0))

	require.Error(t, err)
	assert.True(t, eserrors.IsConflict(err))

	envelopes := collect(t, store, id)
	assert.Len(t, envelopes, 1, "failed batch must not be partially applied")
}

func Test_AppendEvents_EmptyBatchIsRejected(t *testing.T) {
	store := memoryengine.NewEventStore()
	id := buildStreamID(t, "4711")

	err := store.AppendEvents(context.Background(), id, "account", eventstore.Metadata{}, nil, eventstore.AnyVersion())

	require.Error(t, err)
	assert.Equal(t, eserrors.KindInvalidInput, eserrors.KindOf(err))
}

func Test_AppendEvents_StampsBatchMetadata(t *testing.T) {
	store := memoryengine.NewEventStore()
	id := buildStreamID(t, "4711")

	metadata, err := eventstore.NewMetadata(map[string]string{"actor": "alice"})
	require.NoError(t, err)

	require.NoError(t, store.AppendEvents(context.Background(), id, "account", metadata, buildEvents(t, "AccountOpened", "Deposited"), eventstore.AnyVersion()))

	for _, envelope := range collect(t, store, id) {
		assert.True(t, envelope.Metadata.Matches(metadata))
	}
}

func Test_StreamEvents_UnsupportedFilterFails(t *testing.T) {
	store := memoryengine.NewEventStore()
	id := buildStreamID(t, "4711")

	unsupported := []eventstore.Filter{
		eventstore.MatchAll(),
		eventstore.ForStreamTypes("account"),
		eventstore.And(eventstore.WithStreamID(id), eventstore.AfterVersion(1)),
	}

	for _, filter := range unsupported {
		var firstErr error
		for _, err := range store.StreamEvents(context.Background(), filter) {
			firstErr = err
			break
		}

		require.Error(t, firstErr)
		assert.Equal(t, eserrors.KindInvalidInput, eserrors.KindOf(firstErr))
	}
}

func Test_StreamEvents_UnknownStreamYieldsNothing(t *testing.T) {
	store := memoryengine.NewEventStore()
	id := buildStreamID(t, "unknown")

	assert.Empty(t, collect(t, store, id))
}

func Test_StreamEvents_HonorsContextCancellation(t *testing.T) {
	store := memoryengine.NewEventStore()
	id := buildStreamID(t, "4711")

	require.NoError(t, store.AppendEvents(context.Background(), id, "account", eventstore.Metadata{}, buildEvents(t, "AccountOpened", "Deposited"), eventstore.AnyVersion()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var lastErr error
	for _, err := range store.StreamEvents(ctx, eventstore.WithStreamID(id)) {
		lastErr = err
	}

	require.Error(t, lastErr)
}

func Test_StreamEvents_IsolatesStreams(t *testing.T) {
	store := memoryengine.NewEventStore()
	first := buildStreamID(t, "4711")
	second := buildStreamID(t, "4712")
	ctx := context.Background()

	require.NoError(t, store.AppendEvents(ctx, first, "account", eventstore.Metadata{}, buildEvents(t, "AccountOpened"), eventstore.AnyVersion()))
	require.NoError(t, store.AppendEvents(ctx, second, "account", eventstore.Metadata{}, buildEvents(t, "AccountOpened", "Deposited"), eventstore.AnyVersion()))

	assert.Len(t, collect(t, store, first), 1)
	assert.Len(t, collect(t, store, second), 2)
}
