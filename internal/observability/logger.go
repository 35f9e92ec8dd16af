package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/observe/internal/opcontext"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`

	// Format is the output format (json, console, pretty).
	Format string `mapstructure:"format"`

	// Output is the output destination (stdout, stderr).
	Output string `mapstructure:"output"`

	// AddSource adds source file and line number to log entries.
	AddSource bool `mapstructure:"add_source"`

	// TimeFormat is the time format for timestamps.
	TimeFormat string `mapstructure:"time_format"`
}

// DefaultLoggingConfig returns a LoggingConfig with sensible defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a new zerolog logger based on configuration.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	return NewLoggerTo(cfg, outputWriter(cfg.Output))
}

// NewLoggerTo is NewLogger with an explicit destination, ignoring cfg.Output.
func NewLoggerTo(cfg LoggingConfig, output io.Writer) zerolog.Logger {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	// Use console writer for pretty output in development
	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}

	logger := zerolog.New(output).With().Timestamp()
	if cfg.AddSource {
		logger = logger.Caller()
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return logger.Logger().Level(level)
}

func outputWriter(name string) io.Writer {
	switch strings.ToLower(name) {
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}

// parseLevel converts a string log level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithOperationContext adds the identifying fields of an operation context
// to a logger. Empty scope and source are omitted.
func WithOperationContext(logger zerolog.Logger, c *opcontext.Context) zerolog.Logger {
	if c == nil {
		return logger
	}
	lc := logger.With().
		Str("context_id", c.ID).
		Str("operation", c.Name)
	if c.Scope != "" {
		lc = lc.Str("scope", c.Scope)
	}
	if c.Source != "" {
		lc = lc.Str("source", c.Source)
	}
	return lc.Logger()
}

// WithExporterContext adds exporter hook fields to a logger.
func WithExporterContext(logger zerolog.Logger, exporter, phase string) zerolog.Logger {
	return logger.With().
		Str("exporter", exporter).
		Str("phase", phase).
		Logger()
}

// WithCorrelationContext adds the request correlation ID to a logger.
func WithCorrelationContext(logger zerolog.Logger, correlationID string) zerolog.Logger {
	if correlationID == "" {
		return logger
	}
	return logger.With().Str("correlation_id", correlationID).Logger()
}
