package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for observed operations, exporter
// hooks and the HTTP adapter. Metrics are registered on the Registerer given
// to NewMetrics.
type Metrics struct {
	// OperationsStarted counts observed operations entered, labeled by operation name.
	OperationsStarted *prometheus.CounterVec

	// OperationsSucceeded counts observed operations that settled successfully.
	OperationsSucceeded *prometheus.CounterVec

	// OperationsFailed counts observed operations that settled with an error.
	OperationsFailed *prometheus.CounterVec

	// OperationDuration observes the time from context creation to export in seconds.
	OperationDuration *prometheus.HistogramVec

	// ContextDataKeys observes the number of data keys present at export.
	ContextDataKeys *prometheus.HistogramVec

	// HookFailures counts exporter hooks that returned an error or panicked,
	// labeled by exporter and phase.
	HookFailures *prometheus.CounterVec

	// HTTPRequestsTotal counts requests served by the HTTP adapter, labeled by
	// method, route pattern and status code.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes HTTP request duration in seconds.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered on
// reg. A nil reg uses the default Prometheus registerer. The namespace is
// used as a prefix for all metric names.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Operations
		OperationsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_started_total",
			Help:      "Total number of observed operations started",
		}, []string{"operation"}),
		OperationsSucceeded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_succeeded_total",
			Help:      "Total number of observed operations that succeeded",
		}, []string{"operation"}),
		OperationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_failed_total",
			Help:      "Total number of observed operations that failed",
		}, []string{"operation"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of observed operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "outcome"}),
		ContextDataKeys: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_data_keys",
			Help:      "Number of data keys attached to an operation context at export",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}, []string{"operation"}),

		// Exporters
		HookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exporter_hook_failures_total",
			Help:      "Total number of exporter hook invocations that failed",
		}, []string{"exporter", "phase"}),

		// HTTP
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordOperationStarted records that an observed operation has started.
func (m *Metrics) RecordOperationStarted(operation string) {
	m.OperationsStarted.WithLabelValues(operation).Inc()
}

// RecordOperationSucceeded records a successful operation with its duration
// and the number of data keys exported.
func (m *Metrics) RecordOperationSucceeded(operation string, durationSeconds float64, dataKeys int) {
	m.OperationsSucceeded.WithLabelValues(operation).Inc()
	m.OperationDuration.WithLabelValues(operation, "success").Observe(durationSeconds)
	m.ContextDataKeys.WithLabelValues(operation).Observe(float64(dataKeys))
}

// RecordOperationFailed records a failed operation with its duration and the
// number of data keys exported.
func (m *Metrics) RecordOperationFailed(operation string, durationSeconds float64, dataKeys int) {
	m.OperationsFailed.WithLabelValues(operation).Inc()
	m.OperationDuration.WithLabelValues(operation, "failure").Observe(durationSeconds)
	m.ContextDataKeys.WithLabelValues(operation).Observe(float64(dataKeys))
}

// RecordHookFailure records an exporter hook that returned an error or panicked.
func (m *Metrics) RecordHookFailure(exporter, phase string) {
	m.HookFailures.WithLabelValues(exporter, phase).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
