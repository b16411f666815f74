package postgresengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-es/replay-go/eventstore"
)

func testStore(t *testing.T) EventStore {
	t.Helper()

	return EventStore{
		eventTableName:  defaultEventTableName,
		streamTableName: defaultStreamTableName,
	}
}

func testStreamID(t *testing.T) eventstore.StreamID {
	t.Helper()

	id, err := eventstore.NewStreamID("account", "4711")
	require.NoError(t, err)

	return id
}

func Test_BuildSelectQuery_SelectsAndOrders(t *testing.T) {
	es := testStore(t)

	sqlQuery, args, err := es.buildSelectQuery(eventstore.MatchAll())

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `FROM "events"`)
	assert.Contains(t, sqlQuery, `ORDER BY "created_at" ASC, "version" ASC`)
	assert.Contains(t, sqlQuery, "TRUE")
	assert.Empty(t, args)
}

func Test_BuildSelectQuery_StreamIDIsParameterized(t *testing.T) {
	es := testStore(t)
	id := testStreamID(t)

	sqlQuery, args, err := es.buildSelectQuery(eventstore.WithStreamID(id))

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `"stream_id"`)
	assert.NotContains(t, sqlQuery, id.String(), "filter values must never be interpolated")
	assert.Equal(t, []any{id.String()}, args)
}

func Test_BuildSelectQuery_StreamTypesCompilesToSemiJoin(t *testing.T) {
	es := testStore(t)

	sqlQuery, args, err := es.buildSelectQuery(eventstore.ForStreamTypes("account", "order"))

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `IN (SELECT`)
	assert.Contains(t, sqlQuery, `"streams"`)
	assert.Contains(t, sqlQuery, `"stream_type"`)
	assert.ElementsMatch(t, []any{"account", "order"}, args)
}

func Test_BuildSelectQuery_EmptyStreamTypesMatchesNothing(t *testing.T) {
	es := testStore(t)

	sqlQuery, args, err := es.buildSelectQuery(eventstore.StreamTypesFilter{})

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, "FALSE")
	assert.Empty(t, args)
}

func Test_BuildSelectQuery_MetadataUsesJSONBContainment(t *testing.T) {
	es := testStore(t)

	metadata, err := eventstore.NewMetadata(map[string]string{"tenant": "acme"})
	require.NoError(t, err)

	sqlQuery, args, err := es.buildSelectQuery(eventstore.WithMetadata(metadata))

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, "@>")
	assert.Contains(t, sqlQuery, "::jsonb")
	require.Len(t, args, 1)
	assert.JSONEq(t, `{"tenant":"acme"}`, args[0].(string))
}

func Test_BuildSelectQuery_BoundsAreParameterized(t *testing.T) {
	es := testStore(t)
	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	sqlQuery, args, err := es.buildSelectQuery(
		eventstore.And(eventstore.AfterVersion(5), eventstore.CreatedAfter(cutoff)),
	)

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `"version"`)
	assert.Contains(t, sqlQuery, `"created_at"`)
	require.Len(t, args, 2)
	assert.Equal(t, int64(5), args[0])
	assert.Equal(t, cutoff, args[1])
}

func Test_BuildSelectQuery_CombinatorsNestCorrectly(t *testing.T) {
	es := testStore(t)
	id := testStreamID(t)

	filter := eventstore.And(
		eventstore.WithStreamID(id),
		eventstore.Not(eventstore.Or(eventstore.AfterVersion(10), eventstore.AfterVersion(20))),
	)

	sqlQuery, args, err := es.buildSelectQuery(filter)

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, "NOT (")
	assert.Contains(t, sqlQuery, " OR ")
	assert.Contains(t, sqlQuery, " AND ")
	assert.Equal(t, []any{id.String(), int64(10), int64(20)}, args)
}

func Test_BuildSelectQuery_RespectsTableNameOptions(t *testing.T) {
	es, err := newEventStore(nil, []Option{
		WithEventTableName("account_events"),
		WithStreamTableName("account_streams"),
	})
	require.NoError(t, err)

	sqlQuery, _, err := es.buildSelectQuery(eventstore.ForStreamTypes("account"))

	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `"account_events"`)
	assert.Contains(t, sqlQuery, `"account_streams"`)
}

func Test_Options_RejectEmptyTableNames(t *testing.T) {
	_, err := newEventStore(nil, []Option{WithEventTableName("")})
	assert.Error(t, err)

	_, err = newEventStore(nil, []Option{WithStreamTableName("")})
	assert.Error(t, err)
}
