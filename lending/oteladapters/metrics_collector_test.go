package oteladapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/pkleindienst/library-lending-go/lending/oteladapters"
)

func newTestCollector() (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return oteladapters.NewMetricsCollector(provider.Meter("test")), reader
}

func Test_MetricsCollector_RecordDuration_AsSecondsHistogram(t *testing.T) {
	// arrange
	collector, reader := newTestCollector()
	labels := map[string]string{"command_type": "IssueLoan", "status": "success"}

	// act
	collector.RecordDuration("lending_command_duration", 150*time.Millisecond, labels)

	// assert
	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))

	histogram := findHistogramMetric(t, resourceMetrics, "lending_command_duration")
	require.Len(t, histogram.DataPoints, 1)

	dataPoint := histogram.DataPoints[0]
	assert.Equal(t, uint64(1), dataPoint.Count)
	assert.InDelta(t, 0.15, dataPoint.Sum, 0.001)

	expectedAttrs := attribute.NewSet(
		attribute.String("command_type", "IssueLoan"),
		attribute.String("status", "success"),
	)
	assert.True(t, dataPoint.Attributes.Equals(&expectedAttrs))
}

func Test_MetricsCollector_IncrementCounter_Accumulates(t *testing.T) {
	// arrange
	collector, reader := newTestCollector()
	labels := map[string]string{"command_type": "IssueLoan", "error_type": "precondition_failed"}

	// act
	collector.IncrementCounter("lending_command_rejections", labels)
	collector.IncrementCounter("lending_command_rejections", labels)
	collector.IncrementCounter("lending_command_rejections", labels)

	// assert
	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))

	counter := findCounterMetric(t, resourceMetrics, "lending_command_rejections")
	require.Len(t, counter.DataPoints, 1)
	assert.Equal(t, int64(3), counter.DataPoints[0].Value)
}

func Test_MetricsCollector_RecordValue_AsGauge(t *testing.T) {
	// arrange
	collector, reader := newTestCollector()

	// act
	collector.RecordValue("lending_open_loans", 42.0, map[string]string{"title": "any"})

	// assert
	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))

	gauge := findGaugeMetric(t, resourceMetrics, "lending_open_loans")
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, 42.0, gauge.DataPoints[0].Value)
}

func Test_MetricsCollector_ContextualMethods_Record(t *testing.T) {
	// arrange
	collector, reader := newTestCollector()
	ctx := context.Background()
	labels := map[string]string{"test": "contextual"}

	// act
	collector.RecordDurationContext(ctx, "test_duration", 100*time.Millisecond, labels)
	collector.IncrementCounterContext(ctx, "test_counter", labels)
	collector.RecordValueContext(ctx, "test_gauge", 123.45, labels)

	// assert
	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))

	recorded := make(map[string]bool)
	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			recorded[m.Name] = true
		}
	}

	assert.True(t, recorded["test_duration"])
	assert.True(t, recorded["test_counter"])
	assert.True(t, recorded["test_gauge"])
}

func Test_MetricsCollector_NilLabels_DoNotCrash(t *testing.T) {
	// arrange
	collector, reader := newTestCollector()

	// act
	collector.RecordDuration("bare_metric", 50*time.Millisecond, nil)

	// assert
	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))
	findHistogramMetric(t, resourceMetrics, "bare_metric")
}

func findHistogramMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) *metricdata.Histogram[float64] {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				if h, ok := m.Data.(metricdata.Histogram[float64]); ok {
					return &h
				}
			}
		}
	}

	t.Fatalf("histogram metric %s not found", name)
	return nil
}

func findCounterMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) *metricdata.Sum[int64] {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				if c, ok := m.Data.(metricdata.Sum[int64]); ok {
					return &c
				}
			}
		}
	}

	t.Fatalf("counter metric %s not found", name)
	return nil
}

func findGaugeMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) *metricdata.Gauge[float64] {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				if g, ok := m.Data.(metricdata.Gauge[float64]); ok {
					return &g
				}
			}
		}
	}

	t.Fatalf("gauge metric %s not found", name)
	return nil
}
