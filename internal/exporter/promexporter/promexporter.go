// Package promexporter records settled operation contexts as Prometheus
// metrics.
package promexporter

import (
	"context"
	"sync"
	"time"

	"github.com/helixir/observe/internal/observability"
	"github.com/helixir/observe/internal/opcontext"
)

// Name is the registration name of the Prometheus exporter.
const Name = "prometheus"

// OverflowLabel replaces operation names once MaxOperations distinct names
// have been seen.
const OverflowLabel = "other"

// DefaultMaxOperations bounds the operation label when Config leaves it unset.
const DefaultMaxOperations = 100

// Config controls the Prometheus exporter.
type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// MaxOperations is the number of distinct operation names recorded as
	// their own label value. Later names are recorded as OverflowLabel.
	MaxOperations int `mapstructure:"max_operations"`
}

// Exporter counts operations per name and observes their duration and data
// size.
type Exporter struct {
	metrics *observability.Metrics
	now     func() time.Time

	mu     sync.Mutex
	limit  int
	labels map[string]struct{}
}

// New creates an exporter recording into metrics.
func New(metrics *observability.Metrics, cfg Config) *Exporter {
	limit := cfg.MaxOperations
	if limit <= 0 {
		limit = DefaultMaxOperations
	}
	return &Exporter{
		metrics: metrics,
		now:     time.Now,
		limit:   limit,
		labels:  make(map[string]struct{}, limit),
	}
}

func (e *Exporter) Name() string { return Name }

// Before counts the operation as started.
func (e *Exporter) Before(_ context.Context, c *opcontext.Context) error {
	e.metrics.RecordOperationStarted(e.label(c.Name))
	return nil
}

func (e *Exporter) Success(_ context.Context, c *opcontext.Context) error {
	e.metrics.RecordOperationSucceeded(e.label(c.Name), e.elapsed(c), c.Len())
	return nil
}

func (e *Exporter) Failure(_ context.Context, c *opcontext.Context, _ error) error {
	e.metrics.RecordOperationFailed(e.label(c.Name), e.elapsed(c), c.Len())
	return nil
}

// label admits name until the cap is reached.
func (e *Exporter) label(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.labels[name]; ok {
		return name
	}
	if len(e.labels) >= e.limit {
		return OverflowLabel
	}
	e.labels[name] = struct{}{}
	return name
}

func (e *Exporter) elapsed(c *opcontext.Context) float64 {
	d := e.now().Sub(c.Timestamp)
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
