package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/observe/internal/config"
	"github.com/helixir/observe/internal/exporter"
	"github.com/helixir/observe/internal/exporter/console"
	"github.com/helixir/observe/internal/exporter/kafkaexporter"
	"github.com/helixir/observe/internal/exporter/promexporter"
	"github.com/helixir/observe/internal/observability"
)

// buildExporters creates the enabled exporters in a fixed order: console,
// prometheus, kafka. The returned close func flushes exporters that hold
// connections and must be called on shutdown.
func buildExporters(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) ([]exporter.Exporter, func(), error) {
	var (
		exporters []exporter.Exporter
		closers   []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Error().Err(err).Msg("failed to close exporter")
			}
		}
	}

	if cfg.Exporters.Console.Enabled {
		exporters = append(exporters, console.New(logger, cfg.Exporters.Console))
	}

	if cfg.Exporters.Prometheus.Enabled {
		if metrics == nil {
			return nil, closeAll, fmt.Errorf("prometheus exporter requires metrics")
		}
		exporters = append(exporters, promexporter.New(metrics, cfg.Exporters.Prometheus))
	}

	if cfg.Exporters.Kafka.Enabled {
		k, err := kafkaexporter.New(cfg.Exporters.Kafka, logger)
		if err != nil {
			return nil, closeAll, fmt.Errorf("create kafka exporter: %w", err)
		}
		exporters = append(exporters, k)
		closers = append(closers, k.Close)
	}

	return exporters, closeAll, nil
}

func exporterNames(exporters []exporter.Exporter) []string {
	names := make([]string, len(exporters))
	for i, e := range exporters {
		names[i] = e.Name()
	}
	return names
}
