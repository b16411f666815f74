package cqrs_test

import (
	"context"
	"encoding/json"
	"iter"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replay-es/replay-go/cqrs"
	"github.com/replay-es/replay-go/eserrors"
	"github.com/replay-es/replay-go/eventstore"
	"github.com/replay-es/replay-go/eventstore/memoryengine"
	"github.com/replay-es/replay-go/example/bankaccount"
)

type testServices struct{}

func (testServices) ValidateAccountNumber(_ context.Context, accountNumber string) bool {
	return len(accountNumber) >= 5
}

func buildHandler(t *testing.T, store eventstore.EventStore) *cqrs.Handler[*bankaccount.Account, bankaccount.Event, bankaccount.Command, bankaccount.Services] {
	t.Helper()

	handler, err := cqrs.NewHandler(store, bankaccount.Type())
	require.NoError(t, err)

	return handler
}

func buildAccountID(t *testing.T, localID string) eventstore.StreamID {
	t.Helper()

	id, err := eventstore.NewStreamID(bankaccount.Namespace, localID)
	require.NoError(t, err)

	return id
}

func Test_Execute_CommandCycleEndToEnd(t *testing.T) {
	store := memoryengine.NewEventStore()
	handler := buildHandler(t, store)
	id := buildAccountID(t, "4711")
	ctx := context.Background()
	services := testServices{}

	account, err := handler.Execute(ctx, id, eventstore.Metadata{}, bankaccount.OpenAccount{AccountNumber: "ACC-001"}, services, eventstore.ExactVersion(0))
	require.NoError(t, err)
	assert.True(t, account.Opened)
	assert.Equal(t, "ACC-001", account.AccountNumber)

	account, err = handler.Execute(ctx, id, eventstore.Metadata{}, bankaccount.Deposit{Amount: 100}, services, eventstore.ExactVersion(1))
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance)

	account, err = handler.Execute(ctx, id, eventstore.Metadata{}, bankaccount.Withdraw{Amount: 40}, services, eventstore.ExactVersion(2))
	require.NoError(t, err)
	assert.Equal(t, int64(60), account.Balance)

	replayed, version, err := handler.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
	assert.Equal(t, account.Balance, replayed.Balance)
	assert.Equal(t, account.AccountNumber, replayed.AccountNumber)
}

func Test_Execute_StaleExpectedVersionConflicts(t *testing.T) {
	store := memoryengine.NewEventStore()
	handler := buildHandler(t, store)
	id := buildAccountID(t, "4711")
	ctx := context.Background()
	services := testServices{}

	_, err := handler.Execute(ctx, id, eventstore.Metadata{}, bankaccount.OpenAccount{AccountNumber: "ACC-001"}, services, eventstore.ExactVersion(0))
	require.NoError(t, err)

	_, err = handler.Execute(ctx, id, eventstore.Metadata{}, bankaccount.Deposit{Amount: 100}, services, eventstore.ExactVersion(0))

	require.Error(t, err)
	assert.True(t, eserrors.IsConflict(err))

	replayed, version, loadErr := handler.Load(ctx, id)
	require.NoError(t, loadErr)
	assert.Equal(t, int64(1), version, "conflicted command must not persist anything")
	assert.Equal(t, int64(0), replayed.Balance)
}

func Test_Execute_BusinessErrorNeverPersists(t *testing.T) {
	store := memoryengine.NewEventStore()
	handler := buildHandler(t, store)
	id := buildAccountID(t, "4711")
	ctx := context.Background()
	services := testServices{}

	_, err := handler.Execute(ctx, id, eventstore.Metadata{}, bankaccount.OpenAccount{AccountNumber: "ACC-001"}, services, eventstore.ExactVersion(0))
	require.NoError(t, err)

	_, err = handler.Execute(ctx, id, eventstore.Metadata{}, bankaccount.Withdraw{Amount: 100}, services, eventstore.ExactVersion(1))

	require.Error(t, err)
	assert.Equal(t, eserrors.KindBusinessRuleViolation, eserrors.KindOf(err))

	_, version, loadErr := handler.Load(ctx, id)
	require.NoError(t, loadErr)
	assert.Equal(t, int64(1), version)
}

func Test_Execute_RejectsForeignNamespace(t *testing.T) {
	store := memoryengine.NewEventStore()
	handler := buildHandler(t, store)

	foreign, err := eventstore.NewStreamID("order", "4711")
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), foreign, eventstore.Metadata{}, bankaccount.Deposit{Amount: 1}, testServices{}, eventstore.AnyVersion())

	require.Error(t, err)
	assert.Equal(t, eserrors.KindInvalidInput, eserrors.KindOf(err))
}

func Test_Load_EmptyStreamReplaysToIdentity(t *testing.T) {
	store := memoryengine.NewEventStore()
	handler := buildHandler(t, store)
	id := buildAccountID(t, "never-used")

	account, version, err := handler.Load(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	assert.False(t, account.Opened)
	assert.Equal(t, int64(0), account.Balance)
}

// fakeStore serves pre-built envelopes through the in-memory filter
// evaluation, so query behavior over the full algebra can be tested without a
// query-capable backend.
type fakeStore struct {
	envelopes   []eventstore.RawEnvelope
	streamTypes map[eventstore.StreamID]string
}

func (s *fakeStore) AppendEvents(
	context.Context,
	eventstore.StreamID,
	string,
	eventstore.Metadata,
	eventstore.StorableEvents,
	eventstore.ExpectedVersion,
) error {
	return eserrors.Internal("fake store is read-only")
}

func (s *fakeStore) StreamEvents(_ context.Context, filter eventstore.Filter) iter.Seq2[eventstore.RawEnvelope, error] {
	return func(yield func(eventstore.RawEnvelope, error) bool) {
		for _, envelope := range s.envelopes {
			if !filter.Passes(envelope, s.streamTypes[envelope.StreamID]) {
				continue
			}

			if !yield(envelope, nil) {
				return
			}
		}
	}
}

func buildFakeAccountHistory(t *testing.T) (*fakeStore, eventstore.StreamID, eventstore.StreamID) {
	t.Helper()

	checking := buildAccountID(t, "checking")
	savings := buildAccountID(t, "savings")
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	build := func(id eventstore.StreamID, version int64, eventType, payload string, metadata eventstore.Metadata) eventstore.RawEnvelope {
		return eventstore.RawEnvelope{
			ID:        uuid.New(),
			Payload:   json.RawMessage(payload),
			StreamID:  id,
			EventType: eventType,
			Version:   version,
			CreatedAt: base.Add(time.Duration(version) * time.Minute),
			Metadata:  metadata,
		}
	}

	audited, err := eventstore.NewMetadata(map[string]string{"actor": "alice"})
	require.NoError(t, err)

	store := &fakeStore{
		envelopes: []eventstore.RawEnvelope{
			build(checking, 1, bankaccount.AccountOpenedEventType, `{"account_number":"CHK-1"}`, eventstore.Metadata{}),
			build(checking, 2, bankaccount.DepositedEventType, `{"amount":100}`, audited),
			build(checking, 3, bankaccount.WithdrawnEventType, `{"amount":30}`, eventstore.Metadata{}),
			build(savings, 1, bankaccount.AccountOpenedEventType, `{"account_number":"SAV-1"}`, eventstore.Metadata{}),
			build(savings, 2, bankaccount.DepositedEventType, `{"amount":500}`, audited),
		},
		streamTypes: map[eventstore.StreamID]string{
			checking: bankaccount.StreamType,
			savings:  bankaccount.StreamType,
		},
	}

	return store, checking, savings
}

func Test_RunQuery_FoldsMatchingEnvelopes(t *testing.T) {
	store, checking, savings := buildFakeAccountHistory(t)

	projection := bankaccount.NewBalanceProjection(eventstore.MatchAll())
	err := cqrs.RunQuery(context.Background(), store, bankaccount.UnmarshalEvent, projection)

	require.NoError(t, err)
	assert.Equal(t, int64(70), projection.Balances[checking.String()])
	assert.Equal(t, int64(500), projection.Balances[savings.String()])
}

func Test_RunQuery_FilterAlgebraSelectsSubset(t *testing.T) {
	store, checking, savings := buildFakeAccountHistory(t)

	audited, err := eventstore.NewMetadata(map[string]string{"actor": "alice"})
	require.NoError(t, err)

	// All audited deposits outside the checking account.
	filter := eventstore.And(
		eventstore.WithMetadata(audited),
		eventstore.Not(eventstore.WithStreamID(checking)),
	)

	projection := bankaccount.NewBalanceProjection(filter)
	require.NoError(t, cqrs.RunQuery(context.Background(), store, bankaccount.UnmarshalEvent, projection))

	assert.NotContains(t, projection.Balances, checking.String())
	assert.Equal(t, int64(500), projection.Balances[savings.String()])
}

func Test_RunQuery_PropagatesDecodeErrors(t *testing.T) {
	checking := buildAccountID(t, "checking")
	store := &fakeStore{
		envelopes: []eventstore.RawEnvelope{
			{
				ID:        uuid.New(),
				Payload:   json.RawMessage(`{}`),
				StreamID:  checking,
				EventType: "NoSuchEvent",
				Version:   1,
			},
		},
		streamTypes: map[eventstore.StreamID]string{checking: bankaccount.StreamType},
	}

	projection := bankaccount.NewBalanceProjection(eventstore.MatchAll())
	err := cqrs.RunQuery(context.Background(), store, bankaccount.UnmarshalEvent, projection)

	require.Error(t, err)
	assert.Equal(t, eserrors.KindInternal, eserrors.KindOf(err))
}

func Test_Execute_WrappedStorageConflictStaysDetectable(t *testing.T) {
	store := memoryengine.NewEventStore()
	handler := buildHandler(t, store)
	id := buildAccountID(t, "4711")
	ctx := context.Background()
	services := testServices{}

	_, err := handler.Execute(ctx, id, eventstore.Metadata{}, bankaccount.OpenAccount{AccountNumber: "ACC-001"}, services, eventstore.ExactVersion(0))
	require.NoError(t, err)

	// Sneak a concurrent write in behind the handler's back, then execute
	// with the now stale expectation going straight to the append check.
	event, err := eventstore.BuildStorableEvent(bankaccount.DepositedEventType, []byte(`{"amount":1}`))
	require.NoError(t, err)
	require.NoError(t, store.AppendEvents(ctx, id, bankaccount.StreamType, eventstore.Metadata{}, eventstore.StorableEvents{event}, eventstore.AnyVersion()))

	_, err = handler.Execute(ctx, id, eventstore.Metadata{}, bankaccount.Deposit{Amount: 5}, services, eventstore.ExactVersion(1))

	require.Error(t, err)
	assert.True(t, eserrors.IsConflict(err))
}

// versionTrace records the versions of the envelopes it folds, in arrival
// order.
type versionTrace struct {
	filter   eventstore.Filter
	versions []int64
}

func (q *versionTrace) Filter() eventstore.Filter { return q.filter }

func (q *versionTrace) Update(envelope eventstore.Envelope[bankaccount.Event]) {
	q.versions = append(q.versions, envelope.Version)
}

func Test_RunQuery_CreatedAfterFoldsOnlyLaterEnvelopesInOrder(t *testing.T) {
	checking := buildAccountID(t, "checking")
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	build := func(version int64, eventType, payload string) eventstore.RawEnvelope {
		return eventstore.RawEnvelope{
			ID:        uuid.New(),
			Payload:   json.RawMessage(payload),
			StreamID:  checking,
			EventType: eventType,
			Version:   version,
			CreatedAt: base.Add(time.Duration(version) * time.Minute),
		}
	}

	store := &fakeStore{
		envelopes: []eventstore.RawEnvelope{
			build(1, bankaccount.AccountOpenedEventType, `{"account_number":"CHK-1"}`),
			build(2, bankaccount.DepositedEventType, `{"amount":100}`),
			build(3, bankaccount.DepositedEventType, `{"amount":25}`),
			build(4, bankaccount.WithdrawnEventType, `{"amount":30}`),
		},
		streamTypes: map[eventstore.StreamID]string{checking: bankaccount.StreamType},
	}

	// The bound is exclusive, so the envelope written exactly at the cutoff
	// stays out.
	cutoff := base.Add(2 * time.Minute)
	trace := &versionTrace{filter: eventstore.CreatedAfter(cutoff)}

	require.NoError(t, cqrs.RunQuery(context.Background(), store, bankaccount.UnmarshalEvent, trace))
	assert.Equal(t, []int64{3, 4}, trace.versions)
}
