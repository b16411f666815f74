package postgresengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/replay-es/replay-go/eventstore"
)

const (
	metricAppendDuration       = "eventstore_append_duration_seconds"
	metricStreamDuration       = "eventstore_stream_duration_seconds"
	metricEventsAppended       = "eventstore_events_appended_total"
	metricEventsStreamed       = "eventstore_events_streamed_total"
	metricDatabaseErrors       = "eventstore_database_errors_total"
	metricConcurrencyConflicts = "eventstore_concurrency_conflicts_total"

	spanNameAppend  = "eventstore.append_events"
	spanNameStream  = "eventstore.stream_events"
	operationAppend = "append_events"
	operationStream = "stream_events"

	spanAttrOperation   = "operation"
	spanAttrStreamID    = "stream_id"
	spanAttrEventCount  = "event_count"
	spanAttrExpected    = "expected_version"
	spanAttrErrorType   = "error_type"
	spanAttrDurationMS  = "duration_ms"
	labelStatus         = "status"
	labelConflictType   = "conflict_type"
	conflictConcurrency = "concurrency"

	statusSuccess = "success"
	statusError   = "error"

	errorTypeDatabase   = "database"
	errorTypeConversion = "conversion"
	errorTypeConflict   = "concurrency_conflict"
)

// logOperation logs operational information at info level, preferring the
// contextual logger when one is configured.
func (es EventStore) logOperation(ctx context.Context, action string, args ...any) {
	if es.contextualLogger != nil {
		es.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
		return
	}

	if es.logger != nil {
		es.logger.Info(logMsgOperation+action, args...)
	}
}

// logQueryWithDuration logs the executed SQL with timing at debug level.
func (es EventStore) logQueryWithDuration(ctx context.Context, sqlQuery, action string, duration time.Duration) {
	args := []any{logAttrDurationMS, es.toMilliseconds(duration), logAttrQuery, sqlQuery}

	if es.contextualLogger != nil {
		es.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
		return
	}

	if es.logger != nil {
		es.logger.Debug(logMsgSQLExecuted+action, args...)
	}
}

func (es EventStore) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if es.contextualLogger != nil {
		es.contextualLogger.ErrorContext(ctx, message, allArgs...)
		return
	}

	if es.logger != nil {
		es.logger.Error(message, allArgs...)
	}
}

func (es EventStore) logWarn(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if es.contextualLogger != nil {
		es.contextualLogger.WarnContext(ctx, message, allArgs...)
		return
	}

	if es.logger != nil {
		es.logger.Warn(message, allArgs...)
	}
}

// toMilliseconds converts a duration to float64 milliseconds with 3 decimal places.
func (es EventStore) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func (es EventStore) recordDuration(ctx context.Context, metric string, duration time.Duration, operation, status string) {
	if es.metricsCollector == nil {
		return
	}

	labels := map[string]string{spanAttrOperation: operation, labelStatus: status}

	if contextual, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	es.metricsCollector.RecordDuration(metric, duration, labels)
}

func (es EventStore) recordValue(ctx context.Context, metric string, value float64, operation, status string) {
	if es.metricsCollector == nil {
		return
	}

	labels := map[string]string{spanAttrOperation: operation, labelStatus: status}

	if contextual, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	es.metricsCollector.RecordValue(metric, value, labels)
}

func (es EventStore) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if es.metricsCollector == nil {
		return
	}

	if contextual, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	es.metricsCollector.IncrementCounter(metric, labels)
}

func (es EventStore) recordAppendSuccess(ctx context.Context, eventCount int, duration time.Duration) {
	es.recordDuration(ctx, metricAppendDuration, duration, operationAppend, statusSuccess)
	es.recordValue(ctx, metricEventsAppended, float64(eventCount), operationAppend, statusSuccess)
}

func (es EventStore) recordAppendError(ctx context.Context, duration time.Duration) {
	es.recordDuration(ctx, metricAppendDuration, duration, operationAppend, statusError)
	es.incrementCounter(ctx, metricDatabaseErrors, map[string]string{
		spanAttrOperation: operationAppend,
		labelStatus:       statusError,
		spanAttrErrorType: errorTypeDatabase,
	})
}

func (es EventStore) recordConflictMetrics(ctx context.Context) {
	es.incrementCounter(ctx, metricConcurrencyConflicts, map[string]string{
		spanAttrOperation: operationAppend,
		labelConflictType: conflictConcurrency,
	})
}

func (es EventStore) recordStreamSuccess(ctx context.Context, eventCount int, duration time.Duration) {
	es.recordDuration(ctx, metricStreamDuration, duration, operationStream, statusSuccess)
	es.recordValue(ctx, metricEventsStreamed, float64(eventCount), operationStream, statusSuccess)
}

func (es EventStore) recordStreamError(ctx context.Context, errorType string, duration time.Duration) {
	es.recordDuration(ctx, metricStreamDuration, duration, operationStream, statusError)
	es.incrementCounter(ctx, metricDatabaseErrors, map[string]string{
		spanAttrOperation: operationStream,
		labelStatus:       statusError,
		spanAttrErrorType: errorType,
	})
}

func (es EventStore) startAppendSpan(
	ctx context.Context,
	streamID eventstore.StreamID,
	eventCount int,
	expected eventstore.ExpectedVersion,
) (eventstore.SpanContext, context.Context) {

	if es.tracingCollector == nil {
		return nil, ctx
	}

	newCtx, span := es.tracingCollector.StartSpan(ctx, spanNameAppend, map[string]string{
		spanAttrOperation:  operationAppend,
		spanAttrStreamID:   streamID.String(),
		spanAttrEventCount: fmt.Sprintf("%d", eventCount),
		spanAttrExpected:   expected.String(),
	})

	return span, newCtx
}

func (es EventStore) startStreamSpan(ctx context.Context) (eventstore.SpanContext, context.Context) {
	if es.tracingCollector == nil {
		return nil, ctx
	}

	newCtx, span := es.tracingCollector.StartSpan(ctx, spanNameStream, map[string]string{
		spanAttrOperation: operationStream,
	})

	return span, newCtx
}

func (es EventStore) finishSpanSuccess(span eventstore.SpanContext, duration time.Duration) {
	if es.tracingCollector == nil || span == nil {
		return
	}

	span.SetStatus(statusSuccess)
	span.AddAttribute(spanAttrDurationMS, fmt.Sprintf("%.2f", es.toMilliseconds(duration)))
	es.tracingCollector.FinishSpan(span, statusSuccess, nil)
}

func (es EventStore) finishSpanError(span eventstore.SpanContext, errorType string) {
	if es.tracingCollector == nil || span == nil {
		return
	}

	span.SetStatus(statusError)
	span.AddAttribute(spanAttrErrorType, errorType)
	es.tracingCollector.FinishSpan(span, statusError, map[string]string{spanAttrErrorType: errorType})
}
