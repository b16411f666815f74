package obstest

import (
	"context"
	"maps"
	"sync"

	"github.com/replay-es/replay-go/eventstore"
)

// SpanRecord is one finished span as observed by the spy.
type SpanRecord struct {
	Name       string
	Status     string
	Attributes map[string]string
}

// SpySpan is the span handle the spy returns from StartSpan.
type SpySpan struct {
	mu         sync.Mutex
	name       string
	status     string
	attributes map[string]string
}

// SetStatus implements eventstore.SpanContext.
func (s *SpySpan) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
}

// AddAttribute implements eventstore.SpanContext.
func (s *SpySpan) AddAttribute(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attributes[key] = value
}

// SpyTracingCollector captures started and finished spans.
type SpyTracingCollector struct {
	mu       sync.Mutex
	started  []string
	finished []SpanRecord
}

// NewSpyTracingCollector creates an empty collector.
func NewSpyTracingCollector() *SpyTracingCollector {
	return &SpyTracingCollector{}
}

// StartSpan implements eventstore.TracingCollector.
func (c *SpyTracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started = append(c.started, name)

	span := &SpySpan{name: name, attributes: maps.Clone(attrs)}
	if span.attributes == nil {
		span.attributes = make(map[string]string)
	}

	return ctx, span
}

// FinishSpan implements eventstore.TracingCollector.
func (c *SpyTracingCollector) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	span, ok := spanCtx.(*SpySpan)
	if !ok {
		return
	}

	span.mu.Lock()
	record := SpanRecord{
		Name:       span.name,
		Status:     status,
		Attributes: maps.Clone(span.attributes),
	}
	span.mu.Unlock()

	for key, value := range attrs {
		record.Attributes[key] = value
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.finished = append(c.finished, record)
}

// StartedCount returns how many spans with the given name were started.
func (c *SpyTracingCollector) StartedCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, started := range c.started {
		if started == name {
			count++
		}
	}

	return count
}

// FinishedSpans returns all finished spans with the given name.
func (c *SpyTracingCollector) FinishedSpans(name string) []SpanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var records []SpanRecord
	for _, record := range c.finished {
		if record.Name == name {
			records = append(records, record)
		}
	}

	return records
}

// HasFinishedSpan reports whether a span with the given name finished with
// the given status.
func (c *SpyTracingCollector) HasFinishedSpan(name, status string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, record := range c.finished {
		if record.Name == name && record.Status == status {
			return true
		}
	}

	return false
}

// Reset discards all captured spans.
func (c *SpyTracingCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started = c.started[:0]
	c.finished = c.finished[:0]
}

var (
	_ eventstore.TracingCollector = (*SpyTracingCollector)(nil)
	_ eventstore.SpanContext      = (*SpySpan)(nil)
)
