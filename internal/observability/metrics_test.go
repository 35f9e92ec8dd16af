package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics("test_observe", prometheus.NewRegistry())
}

func TestNewMetrics(t *testing.T) {
	m := newTestMetrics(t)

	assert.NotNil(t, m.OperationsStarted)
	assert.NotNil(t, m.OperationsSucceeded)
	assert.NotNil(t, m.OperationsFailed)
	assert.NotNil(t, m.OperationDuration)
	assert.NotNil(t, m.ContextDataKeys)
	assert.NotNil(t, m.HookFailures)
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.HTTPRequestDuration)
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics("dup", reg)
	assert.Panics(t, func() { NewMetrics("dup", reg) })
}

func TestRecordOperationStarted(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordOperationStarted("checkout")
	m.RecordOperationStarted("checkout")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.OperationsStarted.WithLabelValues("checkout")))
}

func TestRecordOperationSucceeded(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordOperationSucceeded("checkout", 0.2, 4)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OperationsSucceeded.WithLabelValues("checkout")))

	count, err := getHistogramSampleCount(m.OperationDuration.WithLabelValues("checkout", "success"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	sum, err := getHistogramSampleSum(m.ContextDataKeys.WithLabelValues("checkout"))
	require.NoError(t, err)
	assert.Equal(t, float64(4), sum)
}

func TestRecordOperationFailed(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordOperationFailed("checkout", 1.5, 2)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OperationsFailed.WithLabelValues("checkout")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.OperationsSucceeded.WithLabelValues("checkout")))

	count, err := getHistogramSampleCount(m.OperationDuration.WithLabelValues("checkout", "failure"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestRecordHookFailure(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordHookFailure("kafka", "success")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HookFailures.WithLabelValues("kafka", "success")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.HookFailures.WithLabelValues("kafka", "before")))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/healthz", "200", 0.01)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200")))
}

func getHistogramSampleCount(o prometheus.Observer) (uint64, error) {
	h, err := histogramOf(o)
	if err != nil {
		return 0, err
	}
	return h.GetSampleCount(), nil
}

func getHistogramSampleSum(o prometheus.Observer) (float64, error) {
	h, err := histogramOf(o)
	if err != nil {
		return 0, err
	}
	return h.GetSampleSum(), nil
}

func histogramOf(o prometheus.Observer) (*dto.Histogram, error) {
	metric := &dto.Metric{}
	if err := o.(prometheus.Metric).Write(metric); err != nil {
		return nil, err
	}
	return metric.Histogram, nil
}
