package prommetrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkleindienst/library-lending-go/example/demo/prommetrics"
)

func Test_Collector_RecordDuration_ObservesHistogram(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := prommetrics.NewCollector(registry)
	labels := map[string]string{"command_type": "IssueLoan", "status": "success"}

	// act
	collector.RecordDuration("lending_command_duration", 150*time.Millisecond, labels)
	collector.RecordDuration("lending_command_duration", 250*time.Millisecond, labels)

	// assert
	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)

	family := families[0]
	assert.Equal(t, "lending_command_duration_seconds", family.GetName())

	require.Len(t, family.GetMetric(), 1)
	histogram := family.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), histogram.GetSampleCount())
	assert.InDelta(t, 0.4, histogram.GetSampleSum(), 0.001)
}

func Test_Collector_IncrementCounter_Accumulates(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := prommetrics.NewCollector(registry)
	labels := map[string]string{"command_type": "ReturnLoan", "status": "success"}

	// act
	for range 3 {
		collector.IncrementCounter("lending_commands", labels)
	}

	// assert
	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)

	family := families[0]
	assert.Equal(t, "lending_commands_total", family.GetName())

	require.Len(t, family.GetMetric(), 1)
	assert.InDelta(t, 3.0, family.GetMetric()[0].GetCounter().GetValue(), 0.001)
}

func Test_Collector_IncrementCounter_SeparatesLabelValues(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := prommetrics.NewCollector(registry)

	// act
	collector.IncrementCounter("lending_command_errors", map[string]string{"command_type": "IssueLoan", "error_type": "not_found"})
	collector.IncrementCounter("lending_command_errors", map[string]string{"command_type": "IssueLoan", "error_type": "precondition_failed"})
	collector.IncrementCounter("lending_command_errors", map[string]string{"command_type": "IssueLoan", "error_type": "precondition_failed"})

	// assert
	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Len(t, families[0].GetMetric(), 2)
}

func Test_Collector_RecordValue_SetsGauge(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := prommetrics.NewCollector(registry)
	labels := map[string]string{"store": "postgres"}

	// act: last write wins
	collector.RecordValue("lending_open_loans", 12, labels)
	collector.RecordValue("lending_open_loans", 7, labels)

	// assert
	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "lending_open_loans", families[0].GetName())

	require.Len(t, families[0].GetMetric(), 1)
	assert.InDelta(t, 7.0, families[0].GetMetric()[0].GetGauge().GetValue(), 0.001)
}

func Test_Collector_NoLabels_DoesNotPanic(t *testing.T) {
	// arrange
	registry := prometheus.NewRegistry()
	collector := prommetrics.NewCollector(registry)

	// act + assert
	assert.NotPanics(t, func() {
		collector.IncrementCounter("lending_scans", nil)
		collector.RecordDuration("lending_scan_duration", time.Second, nil)
		collector.RecordValue("lending_scan_backlog", 0, nil)
	})

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 3)
}
