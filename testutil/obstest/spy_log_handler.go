// Package obstest provides in-memory test doubles for the observability ports
// of the event store. The spies capture every call so tests can assert that
// storage operations emit the expected logs, metrics and spans without wiring
// a real telemetry backend.
package obstest

import (
	"context"
	"log/slog"
	"sync"
)

// SpyLogHandler is a slog.Handler that captures every record it handles.
type SpyLogHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

// NewSpyLogHandler creates an empty handler ready to capture records.
func NewSpyLogHandler() *SpyLogHandler {
	return &SpyLogHandler{}
}

// Handle implements slog.Handler.
func (h *SpyLogHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, record)

	return nil
}

// Enabled implements slog.Handler. The spy captures all levels.
func (h *SpyLogHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

// WithAttrs implements slog.Handler.
func (h *SpyLogHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

// WithGroup implements slog.Handler.
func (h *SpyLogHandler) WithGroup(_ string) slog.Handler { return h }

// Records returns a copy of all captured records.
func (h *SpyLogHandler) Records() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	records := make([]slog.Record, len(h.records))
	copy(records, h.records)

	return records
}

// Reset discards all captured records.
func (h *SpyLogHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = h.records[:0]
}

// HasLog reports whether a record with the given level and message was
// captured.
func (h *SpyLogHandler) HasLog(level slog.Level, message string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, record := range h.records {
		if record.Level == level && record.Message == message {
			return true
		}
	}

	return false
}

// HasLogWithAttr reports whether a record with the given level and message
// carries an attribute with the given key.
func (h *SpyLogHandler) HasLogWithAttr(level slog.Level, message, attrKey string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, record := range h.records {
		if record.Level != level || record.Message != message {
			continue
		}

		found := false
		record.Attrs(func(attr slog.Attr) bool {
			if attr.Key == attrKey {
				found = true
				return false
			}

			return true
		})

		if found {
			return true
		}
	}

	return false
}
