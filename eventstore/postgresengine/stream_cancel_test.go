package postgresengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-es/replay-go/eventstore"
	"github.com/replay-es/replay-go/eventstore/postgresengine/internal/adapters"
)

// doneContextAdapter fails Query with the context's error, the way pgxpool
// does when the caller's context is already done before the query runs.
type doneContextAdapter struct{}

func (doneContextAdapter) Query(ctx context.Context, _ string, _ ...any) (adapters.DBRows, error) {
	return nil, ctx.Err()
}

func (doneContextAdapter) BeginTx(ctx context.Context) (adapters.DBTx, error) {
	return nil, ctx.Err()
}

// interruptedRowsAdapter yields one valid row, then reports cancellation
// through Err, the way pgx surfaces a context cancelled mid-read.
type interruptedRowsAdapter struct{}

func (interruptedRowsAdapter) Query(_ context.Context, _ string, _ ...any) (adapters.DBRows, error) {
	return &interruptedRows{}, nil
}

func (interruptedRowsAdapter) BeginTx(_ context.Context) (adapters.DBTx, error) {
	return nil, errors.New("begin is not expected on the read path")
}

type interruptedRows struct {
	calls int
}

func (r *interruptedRows) Next() bool {
	r.calls++

	return r.calls == 1
}

func (r *interruptedRows) Scan(dest ...any) error {
	*dest[0].(*string) = uuid.New().String()
	*dest[1].(*string) = "account:4711"
	*dest[2].(*string) = "AccountOpened"
	*dest[3].(*int64) = 1
	*dest[4].(*[]byte) = []byte(`{"accountNumber":"4711"}`)
	*dest[5].(*[]byte) = []byte(`{}`)
	*dest[6].(*time.Time) = time.Now().UTC()

	return nil
}

func (r *interruptedRows) Err() error {
	return context.Canceled
}

func (r *interruptedRows) Close() error { return nil }

func bareStore(db adapters.DBAdapter) EventStore {
	return EventStore{
		db:              db,
		eventTableName:  defaultEventTableName,
		streamTableName: defaultStreamTableName,
	}
}

func Test_StreamEvents_DoneContextYieldsError(t *testing.T) {
	store := bareStore(doneContextAdapter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	yielded := 0

	var streamErr error

	for _, err := range store.StreamEvents(ctx, eventstore.MatchAll()) {
		if err != nil {
			streamErr = err

			break
		}

		yielded++
	}

	require.Error(t, streamErr)
	assert.ErrorIs(t, streamErr, context.Canceled)
	assert.Zero(t, yielded)
}

func Test_StreamEvents_CancellationMidReadYieldsError(t *testing.T) {
	store := bareStore(interruptedRowsAdapter{})

	yielded := 0

	var streamErr error

	for _, err := range store.StreamEvents(context.Background(), eventstore.MatchAll()) {
		if err != nil {
			streamErr = err

			break
		}

		yielded++
	}

	assert.Equal(t, 1, yielded)
	require.Error(t, streamErr)
	assert.ErrorIs(t, streamErr, context.Canceled)
}
