package obstest

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/replay-es/replay-go/eventstore"
)

// DurationRecord is one captured RecordDuration call.
type DurationRecord struct {
	Metric   string
	Duration time.Duration
	Labels   map[string]string
}

// CounterRecord is one captured IncrementCounter call.
type CounterRecord struct {
	Metric string
	Labels map[string]string
}

// ValueRecord is one captured RecordValue call.
type ValueRecord struct {
	Metric string
	Value  float64
	Labels map[string]string
}

// SpyMetricsCollector captures every metrics call. It implements both the
// plain and the context-aware collector ports so tests exercise whichever
// path the backend prefers.
type SpyMetricsCollector struct {
	mu        sync.Mutex
	durations []DurationRecord
	counters  []CounterRecord
	values    []ValueRecord
}

// NewSpyMetricsCollector creates an empty collector.
func NewSpyMetricsCollector() *SpyMetricsCollector {
	return &SpyMetricsCollector{}
}

// RecordDuration implements eventstore.MetricsCollector.
func (c *SpyMetricsCollector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.durations = append(c.durations, DurationRecord{
		Metric:   metric,
		Duration: duration,
		Labels:   maps.Clone(labels),
	})
}

// IncrementCounter implements eventstore.MetricsCollector.
func (c *SpyMetricsCollector) IncrementCounter(metric string, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters = append(c.counters, CounterRecord{Metric: metric, Labels: maps.Clone(labels)})
}

// RecordValue implements eventstore.MetricsCollector.
func (c *SpyMetricsCollector) RecordValue(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = append(c.values, ValueRecord{Metric: metric, Value: value, Labels: maps.Clone(labels)})
}

// RecordDurationContext implements eventstore.ContextualMetricsCollector.
func (c *SpyMetricsCollector) RecordDurationContext(_ context.Context, metric string, duration time.Duration, labels map[string]string) {
	c.RecordDuration(metric, duration, labels)
}

// IncrementCounterContext implements eventstore.ContextualMetricsCollector.
func (c *SpyMetricsCollector) IncrementCounterContext(_ context.Context, metric string, labels map[string]string) {
	c.IncrementCounter(metric, labels)
}

// RecordValueContext implements eventstore.ContextualMetricsCollector.
func (c *SpyMetricsCollector) RecordValueContext(_ context.Context, metric string, value float64, labels map[string]string) {
	c.RecordValue(metric, value, labels)
}

// DurationCount returns how many durations were recorded for the metric.
func (c *SpyMetricsCollector) DurationCount(metric string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, record := range c.durations {
		if record.Metric == metric {
			count++
		}
	}

	return count
}

// CounterCount returns how many increments were recorded for the metric.
func (c *SpyMetricsCollector) CounterCount(metric string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, record := range c.counters {
		if record.Metric == metric {
			count++
		}
	}

	return count
}

// Values returns all captured value records for the metric.
func (c *SpyMetricsCollector) Values(metric string) []ValueRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var records []ValueRecord
	for _, record := range c.values {
		if record.Metric == metric {
			records = append(records, record)
		}
	}

	return records
}

// HasDuration reports whether a duration was recorded for the metric with all
// the given labels present.
func (c *SpyMetricsCollector) HasDuration(metric string, labels map[string]string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, record := range c.durations {
		if record.Metric == metric && labelsMatch(record.Labels, labels) {
			return true
		}
	}

	return false
}

// HasCounter reports whether an increment was recorded for the metric with
// all the given labels present.
func (c *SpyMetricsCollector) HasCounter(metric string, labels map[string]string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, record := range c.counters {
		if record.Metric == metric && labelsMatch(record.Labels, labels) {
			return true
		}
	}

	return false
}

// Reset discards all captured records.
func (c *SpyMetricsCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.durations = c.durations[:0]
	c.counters = c.counters[:0]
	c.values = c.values[:0]
}

func labelsMatch(recorded, wanted map[string]string) bool {
	for key, value := range wanted {
		if recorded[key] != value {
			return false
		}
	}

	return true
}

var (
	_ eventstore.MetricsCollector           = (*SpyMetricsCollector)(nil)
	_ eventstore.ContextualMetricsCollector = (*SpyMetricsCollector)(nil)
)
