package local

import (
	"log/slog"

	"github.com/randalmurphal/blockflow/pkg/blockflow/observability"
	"github.com/randalmurphal/blockflow/pkg/blockflow/store"
)

// Backend selects whether blocks may change address.
type Backend string

const (
	// BackendRelocatable lets Relocate and Evict move blocks.
	BackendRelocatable Backend = "relocatable"
	// BackendPinned keeps every block at its creation address.
	BackendPinned Backend = "pinned"
)

// runConfig holds runtime settings.
type runConfig struct {
	workers           int
	backend           Backend
	relocateOnAcquire bool
	abortOnError      bool
	logger            *slog.Logger
	metrics           observability.MetricsRecorder
	spans             observability.SpanManager
	store             store.Store
	ownsStore         bool
	runID             string
}

func defaultRunConfig() runConfig {
	return runConfig{
		workers: 4,
		backend: BackendRelocatable,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// Option configures a Runtime.
type Option func(*runConfig)

// WithWorkers sets the number of worker goroutines. Default: 4.
// Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(c *runConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithBackend selects the block backend. Default: BackendRelocatable.
func WithBackend(b Backend) Option {
	return func(c *runConfig) {
		c.backend = b
	}
}

// WithRelocateOnAcquire moves a block to a fresh address every time it is
// acquired after being fully released. It has no effect on the pinned
// backend.
func WithRelocateOnAcquire(enabled bool) Option {
	return func(c *runConfig) {
		c.relocateOnAcquire = enabled
	}
}

// WithAbortOnError stops the run on the first task error. Without it,
// failed tasks are logged and their errors returned when the run ends.
func WithAbortOnError(enabled bool) Option {
	return func(c *runConfig) {
		c.abortOnError = enabled
	}
}

// WithLogger sets the runtime logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics through the global meter provider.
func WithMetrics(enabled bool) Option {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder sets a custom metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables OpenTelemetry tracing through the global tracer provider.
func WithTracing(enabled bool) Option {
	return func(c *runConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithSpanManager sets a custom span manager.
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *runConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithStore sets where Evict writes blocks. The caller keeps ownership and
// closes it.
func WithStore(s store.Store) Option {
	return func(c *runConfig) {
		c.store = s
		c.ownsStore = false
	}
}

// WithRunID sets the run identifier. Default: a random UUID.
func WithRunID(id string) Option {
	return func(c *runConfig) {
		c.runID = id
	}
}
