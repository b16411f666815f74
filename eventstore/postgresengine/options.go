package postgresengine

import (
	"github.com/replay-es/replay-go/eserrors"
	"github.com/replay-es/replay-go/eventstore"
)

// Option defines a functional option for configuring EventStore.
type Option func(*EventStore) error

// WithEventTableName overrides the default "events" table name.
func WithEventTableName(tableName string) Option {
	return func(es *EventStore) error {
		if tableName == "" {
			return eserrors.InvalidInput("event table name must not be empty").
				WithOperation("postgresengine.WithEventTableName")
		}

		es.eventTableName = tableName

		return nil
	}
}

// WithStreamTableName overrides the default "streams" table name.
func WithStreamTableName(tableName string) Option {
	return func(es *EventStore) error {
		if tableName == "" {
			return eserrors.InvalidInput("stream table name must not be empty").
				WithOperation("postgresengine.WithStreamTableName")
		}

		es.streamTableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the EventStore.
//
// Debug level: SQL statements with execution timing (development use)
// Info level: Event counts, durations, concurrency conflicts (production-safe)
// Warn level: Non-critical issues like rollback or cleanup failures
// Error level: Failures that cause the operation to fail.
func WithLogger(logger eventstore.Logger) Option {
	return func(es *EventStore) error {
		es.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. When configured it takes
// precedence over the plain logger so log records carry trace correlation.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(es *EventStore) error {
		es.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector. It receives operation durations,
// event counts, database errors and concurrency conflicts. Collectors that
// also implement ContextualMetricsCollector get the context-aware calls.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(es *EventStore) error {
		es.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector. Every append and stream operation
// runs inside a span carrying operation, stream and outcome attributes.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(es *EventStore) error {
		es.tracingCollector = collector
		return nil
	}
}
