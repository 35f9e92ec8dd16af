// Package console provides the default exporter, which writes each settled
// operation context as one structured zerolog entry.
package console

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helixir/observe/internal/errcapture"
	"github.com/helixir/observe/internal/observability"
	"github.com/helixir/observe/internal/opcontext"
)

// Name is the registration name of the console exporter.
const Name = "console"

// Config controls the console exporter.
type Config struct {
	// Enabled registers the exporter at startup.
	Enabled bool `mapstructure:"enabled"`

	// Level is the log level for successful operations. Failures are always
	// logged at error level.
	Level string `mapstructure:"level"`
}

// Exporter logs operation contexts.
type Exporter struct {
	logger  zerolog.Logger
	success zerolog.Level
}

// New creates a console exporter writing to logger.
func New(logger zerolog.Logger, cfg Config) *Exporter {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	return &Exporter{
		logger:  logger.With().Str("component", "console_exporter").Logger(),
		success: level,
	}
}

func (e *Exporter) Name() string { return Name }

// Success logs the context data at the configured level.
func (e *Exporter) Success(_ context.Context, c *opcontext.Context) error {
	data, err := c.DataJSON()
	if err != nil {
		return err
	}

	logger := observability.WithOperationContext(e.logger, c)
	logger.WithLevel(e.success).
		Time("context_timestamp", c.Timestamp).
		RawJSON("data", data).
		Msg("operation succeeded")
	return nil
}

// Failure logs the context data and the serialized operation error.
func (e *Exporter) Failure(_ context.Context, c *opcontext.Context, opErr error) error {
	data, err := c.DataJSON()
	if err != nil {
		return err
	}

	logger := observability.WithOperationContext(e.logger, c)
	logger.Error().
		Time("context_timestamp", c.Timestamp).
		Interface("error", errcapture.Serialize(opErr)).
		RawJSON("data", data).
		Msg("operation failed")
	return nil
}
