package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	// RunIDKey is the key used to store the simulation run id in context
	RunIDKey contextKey = "run_id"
)

// Config defines logging configuration
type Config struct {
	// Level is the logging level (debug, info, warn, error)
	Level string `yaml:"level"`
	// Pretty determines if logs should be formatted for human readability
	Pretty bool `yaml:"pretty"`
	// Output is where logs are written (defaults to os.Stdout)
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Pretty: false,
		Output: os.Stdout,
	}
}

// Setup configures global logging based on the provided config and returns
// the configured logger
func Setup(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	return log.Logger
}

// NewRunID returns a fresh identifier for one simulation run
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID stores runID in ctx
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// FromContext returns the global logger tagged with the run id in ctx, if any
func FromContext(ctx context.Context) zerolog.Logger {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return log.With().Str("run_id", runID).Logger()
	}
	return log.Logger
}

// Component returns a context logger tagged with a component name
func Component(ctx context.Context, name string) zerolog.Logger {
	logger := FromContext(ctx)
	return logger.With().Str("component", name).Logger()
}

// Track logs the start of op at debug level and returns a function that logs
// its completion with the elapsed time, at error level when err is non-nil
func Track(logger zerolog.Logger, op string) func(err error) {
	start := time.Now()
	logger.Debug().Str("op", op).Msg("Operation started")

	return func(err error) {
		duration := time.Since(start)
		event := logger.Debug()
		if err != nil {
			event = logger.Error().Err(err)
		}
		event.Str("op", op).Dur("duration", duration).Msg("Operation completed")
	}
}
