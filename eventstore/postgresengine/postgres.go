package postgresengine

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"iter"
	"time"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/replay-es/replay-go/eserrors"
	"github.com/replay-es/replay-go/eventstore"
	"github.com/replay-es/replay-go/eventstore/postgresengine/internal/adapters"
)

const (
	defaultEventTableName  = "events"
	defaultStreamTableName = "streams"

	colEventID   = "id"
	colStreamID  = "stream_id"
	colEventType = "event_type"
	colVersion   = "version"
	colPayload   = "payload"
	colMetadata  = "metadata"
	colCreatedAt = "created_at"

	colStreamPK   = "id"
	colStreamType = "stream_type"

	dialectPostgres  = "postgres"
	litTrue          = "TRUE"
	litFalse         = "FALSE"
	sqlContainsJSONB = " @> ?::jsonb"
	sqlNotWrapped    = "NOT (?)"

	sqlAppendEvent = "SELECT append_event($1::uuid, $2::text, $3::text, $4::text, $5::jsonb, $6::jsonb, $7::bigint)"

	opAppendEvents = "postgresengine.AppendEvents"
	opStreamEvents = "postgresengine.StreamEvents"

	logMsgBuildSelectQueryFailed = "failed to build select query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgConvertRowFailed       = "failed to convert database row to envelope"
	logMsgBeginTxFailed          = "failed to begin append transaction"
	logMsgAppendEventFailed      = "append_event call failed"
	logMsgCommitFailed           = "failed to commit append transaction"
	logMsgRollbackFailed         = "failed to roll back append transaction"
	logMsgEventsAppended         = "events appended"
	logMsgStreamCompleted        = "stream completed"
	logMsgConcurrencyConflict    = "concurrency conflict detected"
	logMsgSQLExecuted            = "executed sql for: "
	logMsgOperation              = "eventstore operation: "

	logAttrError           = "error"
	logAttrQuery           = "query"
	logAttrStreamID        = "stream_id"
	logAttrEventType       = "event_type"
	logAttrEventCount      = "event_count"
	logAttrDurationMS      = "duration_ms"
	logAttrExpectedVersion = "expected_version"
	logAttrActualVersion   = "actual_version"

	logActionStream = "stream"
	logActionAppend = "append"

	// conversionWindow bounds how far row scanning may run ahead of the
	// consumer of the event sequence.
	conversionWindow = 4
)

// EventStore is the Postgres-backed storage engine. Appends run inside one
// transaction through the append_event database function, which serializes
// writers per stream and enforces the optimistic-concurrency check; reads are
// parameterized selects compiled from the filter tree.
//
// The zero value is not usable; construct one with the NewEventStoreFrom*
// factory matching your database access library.
type EventStore struct {
	db               adapters.DBAdapter
	eventTableName   string
	streamTableName  string
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metricsCollector eventstore.MetricsCollector
	tracingCollector eventstore.TracingCollector
}

// rowRecord carries one scanned row from the scanner goroutine to the
// consumer. Byte fields are cloned before sending since drivers may reuse
// their scan buffers between rows.
type rowRecord struct {
	id        string
	streamID  string
	eventType string
	version   int64
	payload   []byte
	metadata  []byte
	createdAt time.Time
}

// NewEventStoreFromPGXPool creates an EventStore using a pgx connection pool.
func NewEventStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (EventStore, error) {
	if db == nil {
		return EventStore{}, errNilDatabaseConnection()
	}

	return newEventStore(adapters.NewPGXAdapter(db), options)
}

// NewEventStoreFromPGXPoolAndReplica creates an EventStore using a primary pgx
// pool for writes and strongly consistent reads, plus a replica pool that
// serves reads when the context carries EventualConsistency.
func NewEventStoreFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (EventStore, error) {
	if db == nil || replica == nil {
		return EventStore{}, errNilDatabaseConnection()
	}

	return newEventStore(adapters.NewPGXAdapterWithReplica(db, replica), options)
}

// NewEventStoreFromSQLDB creates an EventStore using a database/sql handle
// backed by lib/pq.
func NewEventStoreFromSQLDB(db *sql.DB, options ...Option) (EventStore, error) {
	if db == nil {
		return EventStore{}, errNilDatabaseConnection()
	}

	return newEventStore(adapters.NewSQLAdapter(db), options)
}

// NewEventStoreFromSQLX creates an EventStore using an sqlx handle backed by
// lib/pq.
func NewEventStoreFromSQLX(db *sqlx.DB, options ...Option) (EventStore, error) {
	if db == nil {
		return EventStore{}, errNilDatabaseConnection()
	}

	return newEventStore(adapters.NewSQLXAdapter(db), options)
}

func newEventStore(db adapters.DBAdapter, options []Option) (EventStore, error) {
	es := EventStore{
		db:              db,
		eventTableName:  defaultEventTableName,
		streamTableName: defaultStreamTableName,
	}

	for _, option := range options {
		if err := option(&es); err != nil {
			return EventStore{}, err
		}
	}

	return es, nil
}

func errNilDatabaseConnection() error {
	return eserrors.InvalidInput("database connection must not be nil").
		WithOperation("postgresengine.NewEventStore")
}

// AppendEvents persists the batch in one transaction, calling append_event
// once per event. The database function assigns tail+1 versions under a
// per-stream row lock and raises a serialization failure when the expected
// version does not match the tail, so the whole batch commits or nothing does.
func (es EventStore) AppendEvents(
	ctx context.Context,
	streamID eventstore.StreamID,
	streamType string,
	metadata eventstore.Metadata,
	events eventstore.StorableEvents,
	expected eventstore.ExpectedVersion,
) error {

	if len(events) == 0 {
		return eserrors.InvalidInput("event batch must not be empty").
			WithOperation(opAppendEvents).
			WithContext(logAttrStreamID, streamID)
	}

	if streamID.IsZero() || streamType == "" {
		return eserrors.InvalidInput("stream id and stream type must not be empty").
			WithOperation(opAppendEvents).
			WithContext(logAttrStreamID, streamID)
	}

	span, ctx := es.startAppendSpan(ctx, streamID, len(events), expected)
	start := time.Now()

	appendErr := es.appendInTx(ctx, streamID, streamType, metadata, events, expected)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlAppendEvent, logActionAppend, duration)

	if appendErr != nil {
		if eserrors.IsConflict(appendErr) {
			es.recordConflictMetrics(ctx)
			es.finishSpanError(span, errorTypeConflict)
			es.logOperation(ctx, logMsgConcurrencyConflict,
				logAttrStreamID, streamID.String(),
				logAttrExpectedVersion, expected.String(),
			)

			return appendErr
		}

		es.recordAppendError(ctx, duration)
		es.finishSpanError(span, errorTypeDatabase)

		return appendErr
	}

	es.recordAppendSuccess(ctx, len(events), duration)
	es.finishSpanSuccess(span, duration)
	es.logOperation(ctx, logMsgEventsAppended,
		logAttrStreamID, streamID.String(),
		logAttrEventCount, len(events),
		logAttrDurationMS, es.toMilliseconds(duration),
	)

	return nil
}

func (es EventStore) appendInTx(
	ctx context.Context,
	streamID eventstore.StreamID,
	streamType string,
	metadata eventstore.Metadata,
	events eventstore.StorableEvents,
	expected eventstore.ExpectedVersion,
) error {

	tx, beginErr := es.db.BeginTx(ctx)
	if beginErr != nil {
		es.logError(ctx, logMsgBeginTxFailed, beginErr)

		return eserrors.Unavailable("beginning append transaction failed").
			WithOperation(opAppendEvents).
			WithContext(logAttrStreamID, streamID).
			WithCause(beginErr)
	}

	for i, event := range events {
		var expectedArg any
		if expected.IsExact() {
			expectedArg = expected.Version() + int64(i)
		}

		var newVersion int64
		row := tx.QueryRow(ctx, sqlAppendEvent,
			uuid.New().String(),
			streamID.String(),
			streamType,
			event.EventType,
			string(event.PayloadJSON),
			string(metadata.JSON()),
			expectedArg,
		)

		if scanErr := row.Scan(&newVersion); scanErr != nil {
			es.rollback(ctx, tx)

			var conflict *adapters.ConflictError
			if errors.As(scanErr, &conflict) {
				return eventstore.BuildConcurrencyConflictError(streamID, expected, conflict.Actual)
			}

			es.logError(ctx, logMsgAppendEventFailed, scanErr,
				logAttrStreamID, streamID.String(),
				logAttrEventType, event.EventType,
			)

			return eserrors.Unavailable("appending event failed").
				WithOperation(opAppendEvents).
				WithContext(logAttrStreamID, streamID).
				WithContext(logAttrEventType, event.EventType).
				WithCause(scanErr)
		}
	}

	// A failed commit leaves the transaction finished; no rollback needed.
	if commitErr := tx.Commit(ctx); commitErr != nil {
		var conflict *adapters.ConflictError
		if errors.As(commitErr, &conflict) {
			return eventstore.BuildConcurrencyConflictError(streamID, expected, conflict.Actual)
		}

		es.logError(ctx, logMsgCommitFailed, commitErr, logAttrStreamID, streamID.String())

		return eserrors.Unavailable("committing append transaction failed").
			WithOperation(opAppendEvents).
			WithContext(logAttrStreamID, streamID).
			WithCause(commitErr)
	}

	return nil
}

func (es EventStore) rollback(ctx context.Context, tx adapters.DBTx) {
	if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
		es.logWarn(ctx, logMsgRollbackFailed, rollbackErr)
	}
}

// StreamEvents compiles the filter into one parameterized select and yields
// the matching envelopes lazily in (created_at, version) order. Row scanning
// runs in a goroutine a bounded window ahead of the consumer; abandoning the
// sequence or canceling ctx stops the scan promptly.
func (es EventStore) StreamEvents(ctx context.Context, filter eventstore.Filter) iter.Seq2[eventstore.RawEnvelope, error] {
	return func(yield func(eventstore.RawEnvelope, error) bool) {
		sqlQuery, args, buildErr := es.buildSelectQuery(filter)
		if buildErr != nil {
			es.logError(ctx, logMsgBuildSelectQueryFailed, buildErr)
			yield(eventstore.RawEnvelope{}, buildErr)

			return
		}

		span, ctx := es.startStreamSpan(ctx)
		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		start := time.Now()
		records := make(chan rowRecord, conversionWindow)
		group, groupCtx := errgroup.WithContext(streamCtx)

		group.Go(func() error {
			defer close(records)

			return es.scanRows(groupCtx, sqlQuery, args, records)
		})

		yielded := 0
		abandoned := false

		for record := range records {
			envelope, convertErr := es.envelopeFromRecord(record)
			if convertErr != nil {
				cancel()
				drain(records)
				_ = group.Wait()

				es.logError(ctx, logMsgConvertRowFailed, convertErr)
				es.recordStreamError(ctx, errorTypeConversion, time.Since(start))
				es.finishSpanError(span, errorTypeConversion)
				yield(eventstore.RawEnvelope{}, convertErr)

				return
			}

			if !yield(envelope, nil) {
				abandoned = true

				break
			}

			yielded++
		}

		cancel()
		drain(records)
		scanErr := group.Wait()
		duration := time.Since(start)
		es.logQueryWithDuration(ctx, sqlQuery, logActionStream, duration)

		if abandoned {
			es.finishSpanSuccess(span, duration)

			return
		}

		// The abandoned path returned above, so any scanner error left here
		// is genuine, including cancellation of the caller's context. An
		// interrupted stream must not end as a clean success.
		if scanErr != nil {
			es.recordStreamError(ctx, errorTypeDatabase, duration)
			es.finishSpanError(span, errorTypeDatabase)
			yield(eventstore.RawEnvelope{}, scanErr)

			return
		}

		es.recordStreamSuccess(ctx, yielded, duration)
		es.finishSpanSuccess(span, duration)
		es.logOperation(ctx, logMsgStreamCompleted,
			logAttrEventCount, yielded,
			logAttrDurationMS, es.toMilliseconds(duration),
		)
	}
}

// scanRows executes the select and feeds cloned rows into the channel until
// the rows are exhausted or the context is done.
func (es EventStore) scanRows(ctx context.Context, sqlQuery string, args []any, records chan<- rowRecord) error {
	rows, queryErr := es.db.Query(ctx, sqlQuery, args...)
	if queryErr != nil {
		es.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)

		return eserrors.Unavailable("querying events failed").
			WithOperation(opStreamEvents).
			WithCause(queryErr)
	}
	defer es.closeRows(ctx, rows)

	for rows.Next() {
		var record rowRecord

		scanErr := rows.Scan(
			&record.id,
			&record.streamID,
			&record.eventType,
			&record.version,
			&record.payload,
			&record.metadata,
			&record.createdAt,
		)
		if scanErr != nil {
			es.logError(ctx, logMsgScanRowFailed, scanErr)

			return eserrors.Internal("scanning database row failed").
				WithOperation(opStreamEvents).
				WithCause(scanErr)
		}

		// The driver may reuse scan buffers on the next call to Next.
		record.payload = bytes.Clone(record.payload)
		record.metadata = bytes.Clone(record.metadata)

		select {
		case records <- record:
		case <-ctx.Done():
			return eserrors.Unavailable("streaming events interrupted").
				WithOperation(opStreamEvents).
				WithCause(ctx.Err())
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return eserrors.Unavailable("reading event rows failed").
			WithOperation(opStreamEvents).
			WithCause(rowsErr)
	}

	return nil
}

func (es EventStore) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		es.logWarn(ctx, "failed to close database rows", closeErr)
	}
}

func (es EventStore) envelopeFromRecord(record rowRecord) (eventstore.RawEnvelope, error) {
	id, idErr := uuid.Parse(record.id)
	if idErr != nil {
		return eventstore.RawEnvelope{}, eserrors.Internal("stored event id is not a valid uuid").
			WithOperation(opStreamEvents).
			WithContext("event_id", record.id).
			WithCause(idErr)
	}

	streamID, streamIDErr := eventstore.ParseStreamID(record.streamID)
	if streamIDErr != nil {
		return eventstore.RawEnvelope{}, eserrors.Internal("stored stream id is malformed").
			WithOperation(opStreamEvents).
			WithContext(logAttrStreamID, record.streamID).
			WithCause(streamIDErr)
	}

	metadata, metadataErr := eventstore.MetadataFromJSON(record.metadata)
	if metadataErr != nil {
		return eventstore.RawEnvelope{}, eserrors.Internal("stored metadata is malformed").
			WithOperation(opStreamEvents).
			WithContext(logAttrStreamID, record.streamID).
			WithCause(metadataErr)
	}

	return eventstore.RawEnvelope{
		ID:        id,
		Payload:   json.RawMessage(record.payload),
		StreamID:  streamID,
		EventType: record.eventType,
		Version:   record.version,
		CreatedAt: record.createdAt,
		Metadata:  metadata,
	}, nil
}

func drain(records <-chan rowRecord) {
	for range records {
	}
}

var _ eventstore.EventStore = EventStore{}
