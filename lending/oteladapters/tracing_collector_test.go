package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pkleindienst/library-lending-go/lending/oteladapters"
)

func newTestTracer() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter
}

func Test_TracingCollector_StartAndFinishSpan_Success(t *testing.T) {
	// arrange
	collector, exporter := newTestTracer()
	attrs := map[string]string{"command_type": "IssueLoan"}

	// act
	ctx, spanCtx := collector.StartSpan(context.Background(), "lending.IssueLoan", attrs)
	collector.FinishSpan(spanCtx, "success", map[string]string{"duration_ms": "1.25"})

	// assert
	assert.NotNil(t, ctx)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "lending.IssueLoan", span.Name)
	assertSpanHasAttribute(t, span, "command_type", "IssueLoan")
	assertSpanHasAttribute(t, span, "duration_ms", "1.25")
	assert.Equal(t, codes.Ok, span.Status.Code)
}

func Test_TracingCollector_FinishSpan_ErrorStatus(t *testing.T) {
	// arrange
	collector, exporter := newTestTracer()

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "lending.ReturnLoan", nil)
	collector.FinishSpan(spanCtx, "error", map[string]string{"error_type": "precondition_failed"})

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assertSpanHasAttribute(t, spans[0], "error_type", "precondition_failed")
}

func Test_TracingCollector_UnknownStatus_RecordedAsAttribute(t *testing.T) {
	// arrange
	collector, exporter := newTestTracer()

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "lending.RenewLoan", nil)
	collector.FinishSpan(spanCtx, "partially-done", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assertSpanHasAttribute(t, spans[0], "status", "partially-done")
}

func Test_OTelSpanContext_AddAttribute(t *testing.T) {
	// arrange
	collector, exporter := newTestTracer()

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "lending.ScanOverdue", nil)
	spanCtx.AddAttribute("overdue_count", "3")
	collector.FinishSpan(spanCtx, "ok", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assertSpanHasAttribute(t, spans[0], "overdue_count", "3")
}

func Test_TracingCollector_FinishSpan_ForeignSpanContextIgnored(t *testing.T) {
	// arrange
	collector, exporter := newTestTracer()

	// act + assert: a SpanContext from another implementation must be a no-op
	assert.NotPanics(t, func() {
		collector.FinishSpan(foreignSpanContext{}, "ok", nil)
	})
	assert.Empty(t, exporter.GetSpans())
}

type foreignSpanContext struct{}

func (foreignSpanContext) SetStatus(string)        {}
func (foreignSpanContext) AddAttribute(_, _ string) {}

func assertSpanHasAttribute(t *testing.T, span tracetest.SpanStub, key string, value string) {
	t.Helper()

	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) {
			assert.Equal(t, value, attr.Value.AsString())
			return
		}
	}

	t.Errorf("span %s is missing attribute %s", span.Name, key)
}
