// Package observability provides structured logging, metrics and tracing
// for blockflow runtimes.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// LogRunStart logs the start of a runtime run.
func LogRunStart(logger *slog.Logger, runID string, workers int) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("run_id", runID),
		slog.Int("workers", workers),
	)
}

// LogRunComplete logs a run that stopped normally.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, tasks int64) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int64("tasks_executed", tasks),
	)
}

// LogRunError logs a run that stopped with an error or an abort.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogTaskStart logs task execution start.
func LogTaskStart(logger *slog.Logger, template string) {
	if logger == nil {
		return
	}
	logger.Debug("task starting",
		slog.String("template", template),
	)
}

// LogTaskComplete logs successful task completion.
func LogTaskComplete(logger *slog.Logger, template string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("task completed",
		slog.String("template", template),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogTaskError logs a task that returned an error or panicked.
func LogTaskError(logger *slog.Logger, template string, err error) {
	if logger == nil {
		return
	}
	logger.Error("task failed",
		slog.String("template", template),
		slog.String("error", err.Error()),
	)
}

// LogEventSatisfied logs an event firing.
func LogEventSatisfied(logger *slog.Logger, event, kind string, dependents int) {
	if logger == nil {
		return
	}
	logger.Debug("event satisfied",
		slog.String("event", event),
		slog.String("kind", kind),
		slog.Int("dependents", dependents),
	)
}

// LogBlockRelocated logs a block moved to a new address.
func LogBlockRelocated(logger *slog.Logger, block string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("block relocated",
		slog.String("block", block),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogBlockEvicted logs a block written out to the store.
func LogBlockEvicted(logger *slog.Logger, block string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("block evicted",
		slog.String("block", block),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogBlockError logs a failed block operation (non-fatal).
func LogBlockError(logger *slog.Logger, block, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("block operation failed",
		slog.String("block", block),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
