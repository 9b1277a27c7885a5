package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records runtime metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordTaskExecution records a task execution with its duration and error status.
	RecordTaskExecution(ctx context.Context, template string, duration time.Duration, err error)

	// RecordRun records a run completion.
	RecordRun(ctx context.Context, success bool, duration time.Duration)

	// RecordEventSatisfied records an event firing.
	RecordEventSatisfied(ctx context.Context, kind string)

	// RecordBlockCreated records a block allocation.
	RecordBlockCreated(ctx context.Context, sizeBytes int64)

	// RecordBlockRelocation records a block moved to a new address.
	RecordBlockRelocation(ctx context.Context, sizeBytes int64)

	// RecordBlockEviction records a block written out to the store.
	RecordBlockEviction(ctx context.Context, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	taskExecutions   metric.Int64Counter
	taskLatency      metric.Float64Histogram
	taskErrors       metric.Int64Counter
	runs             metric.Int64Counter
	runLatency       metric.Float64Histogram
	eventsSatisfied  metric.Int64Counter
	blockSize        metric.Int64Histogram
	blockRelocations metric.Int64Counter
	blockEvictions   metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the shared OTel metrics instance.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("blockflow")
	m := &otelMetrics{}
	var err error

	if m.taskExecutions, err = meter.Int64Counter("blockflow.task.executions",
		metric.WithDescription("Number of task executions"),
	); err != nil {
		return nil, err
	}

	if m.taskLatency, err = meter.Float64Histogram("blockflow.task.latency_ms",
		metric.WithDescription("Task execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.taskErrors, err = meter.Int64Counter("blockflow.task.errors",
		metric.WithDescription("Number of failed task executions"),
	); err != nil {
		return nil, err
	}

	if m.runs, err = meter.Int64Counter("blockflow.runs",
		metric.WithDescription("Number of runtime runs"),
	); err != nil {
		return nil, err
	}

	if m.runLatency, err = meter.Float64Histogram("blockflow.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.eventsSatisfied, err = meter.Int64Counter("blockflow.event.satisfied",
		metric.WithDescription("Number of events fired"),
	); err != nil {
		return nil, err
	}

	if m.blockSize, err = meter.Int64Histogram("blockflow.block.size_bytes",
		metric.WithDescription("Size of created blocks in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if m.blockRelocations, err = meter.Int64Counter("blockflow.block.relocations",
		metric.WithDescription("Number of block relocations"),
	); err != nil {
		return nil, err
	}

	if m.blockEvictions, err = meter.Int64Counter("blockflow.block.evictions",
		metric.WithDescription("Number of block evictions"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordTaskExecution records a task execution.
func (m *otelMetrics) RecordTaskExecution(ctx context.Context, template string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("template", template))

	m.taskExecutions.Add(ctx, 1, attrs)
	m.taskLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.taskErrors.Add(ctx, 1, attrs)
	}
}

// RecordRun records a run.
func (m *otelMetrics) RecordRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordEventSatisfied records an event firing.
func (m *otelMetrics) RecordEventSatisfied(ctx context.Context, kind string) {
	m.eventsSatisfied.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordBlockCreated records a block allocation.
func (m *otelMetrics) RecordBlockCreated(ctx context.Context, sizeBytes int64) {
	m.blockSize.Record(ctx, sizeBytes)
}

// RecordBlockRelocation records a relocation.
func (m *otelMetrics) RecordBlockRelocation(ctx context.Context, sizeBytes int64) {
	m.blockRelocations.Add(ctx, 1, metric.WithAttributes(attribute.Int64("size_bytes", sizeBytes)))
}

// RecordBlockEviction records an eviction.
func (m *otelMetrics) RecordBlockEviction(ctx context.Context, sizeBytes int64) {
	m.blockEvictions.Add(ctx, 1, metric.WithAttributes(attribute.Int64("size_bytes", sizeBytes)))
}
