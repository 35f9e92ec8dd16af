// Package observability provides logging and metrics support for the
// observe service and its exporters.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for operations, exporter hooks and HTTP requests
//   - Context helpers for request correlation data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("exporter", "console").Msg("exporter registered")
//
// Add operation context to logger:
//
//	logger = observability.WithOperationContext(logger, c)
//
// # Metrics
//
// Initialize metrics on a registry:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics("observe", reg)
//
// Record metrics:
//
//	metrics.RecordOperationStarted("checkout")
//	metrics.RecordHookFailure("kafka", "success")
//
// # Context Helpers
//
// Store and retrieve request correlation data:
//
//	ctx = observability.WithCorrelationID(ctx, id)
//	id := observability.CorrelationIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - context_id: Operation context identifier
//   - operation: Operation name
//   - scope: Operation scope
//   - source: Operation source
//   - exporter: Exporter name
//   - phase: Exporter hook phase (before, success, failure, after, error)
//   - correlation_id: Request correlation identifier
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
