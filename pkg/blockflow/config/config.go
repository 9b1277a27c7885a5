package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Backend names accepted in Config.Backend.
const (
	BackendRelocatable = "relocatable"
	BackendPinned      = "pinned"
)

// Config is the runtime configuration.
type Config struct {
	// Workers is the number of task workers. Must be at least 1.
	Workers int `yaml:"workers" json:"workers"`

	// Backend is "relocatable" (blocks may move) or "pinned" (never).
	Backend string `yaml:"backend" json:"backend"`

	// RelocateOnAcquire moves every block to a fresh address when it is
	// acquired while no one holds it. Useful to shake out raw pointers.
	RelocateOnAcquire bool `yaml:"relocate_on_acquire" json:"relocate_on_acquire"`

	// AbortOnError stops the run on the first task error.
	AbortOnError bool `yaml:"abort_on_error" json:"abort_on_error"`

	// Metrics enables OpenTelemetry metrics.
	Metrics bool `yaml:"metrics" json:"metrics"`

	// Tracing enables OpenTelemetry tracing.
	Tracing bool `yaml:"tracing" json:"tracing"`

	// ShutdownTimeout bounds a run. Zero means no limit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	Log   LogConfig   `yaml:"log" json:"log"`
	Store StoreConfig `yaml:"store" json:"store"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`
	// Format is text or json.
	Format string `yaml:"format" json:"format"`
}

// StoreConfig selects where evicted blocks go.
type StoreConfig struct {
	// Kind is memory, sqlite or pebble.
	Kind string `yaml:"kind" json:"kind"`
	// Path is the SQLite file or Pebble directory.
	Path string `yaml:"path" json:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workers: 4,
		Backend: BackendRelocatable,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Kind: "memory",
		},
	}
}

// FromValues builds a Config from a decoded document, starting from Default.
func FromValues(v Values) Config {
	def := Default()
	log := v.Sub("log")
	st := v.Sub("store")
	return Config{
		Workers:           v.Int("workers", def.Workers),
		Backend:           v.String("backend", def.Backend),
		RelocateOnAcquire: v.Bool("relocate_on_acquire", def.RelocateOnAcquire),
		AbortOnError:      v.Bool("abort_on_error", def.AbortOnError),
		Metrics:           v.Bool("metrics", def.Metrics),
		Tracing:           v.Bool("tracing", def.Tracing),
		ShutdownTimeout:   v.Duration("shutdown_timeout", def.ShutdownTimeout),
		Log: LogConfig{
			Level:  log.String("level", def.Log.Level),
			Format: log.String("format", def.Log.Format),
		},
		Store: StoreConfig{
			Kind: st.String("kind", def.Store.Kind),
			Path: st.String("path", def.Store.Path),
		},
	}
}

// Validate checks field values and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	switch c.Backend {
	case BackendRelocatable, BackendPinned:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	switch c.Store.Kind {
	case "", "memory", "sqlite":
	case "pebble":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for pebble"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}
	return errors.Join(errs...)
}

// NewLogger builds a logger writing to w as configured by c.Log.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
