// ABOUTME: Tests for the no-op telemetry implementation and the duration and byte helpers
// ABOUTME: A recording Telemetry checks that helpers forward names, values and attributes

package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type recorded struct {
	name  string
	value float64
	attrs []attribute.KeyValue
}

type recordingTelemetry struct {
	histograms []recorded
	counters   []recorded
}

func (r *recordingTelemetry) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	r.histograms = append(r.histograms, recorded{name, value, attrs})
}

func (r *recordingTelemetry) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	r.counters = append(r.counters, recorded{name, float64(value), attrs})
}

func (r *recordingTelemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (r *recordingTelemetry) Shutdown(ctx context.Context) error {
	return nil
}

func TestNoopTelemetry(t *testing.T) {
	tel := NewNoop()
	ctx := context.Background()

	tel.RecordHistogram(ctx, "test.histogram", 1.5, attribute.String("key", "value"))
	tel.RecordCounter(ctx, "test.counter", 10, attribute.String("key", "value"))

	spanCtx, span := tel.StartSpan(ctx, "test.span", attribute.String("test", "value"))
	if spanCtx == nil || span == nil {
		t.Fatal("StartSpan should return a context and span")
	}
	if span.IsRecording() {
		t.Error("No-op span should not record")
	}
	span.End()

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}
}

func TestNewForTesting(t *testing.T) {
	if _, ok := NewForTesting().(*NoopTelemetry); !ok {
		t.Error("NewForTesting should return the no-op implementation")
	}
}

func TestRecordDuration(t *testing.T) {
	tel := &recordingTelemetry{}
	start := time.Now().Add(-10 * time.Millisecond)

	RecordDuration(context.Background(), tel, "test.duration", start, attribute.String(AttrOperationType, OpTypeLookup))

	if len(tel.histograms) != 1 {
		t.Fatalf("Expected 1 histogram record, got %d", len(tel.histograms))
	}
	r := tel.histograms[0]
	if r.name != "test.duration" || r.value < 0.01 {
		t.Errorf("Unexpected record %+v", r)
	}
	if len(r.attrs) != 1 || r.attrs[0].Value.AsString() != OpTypeLookup {
		t.Errorf("Expected operation attribute, got %v", r.attrs)
	}
}

func TestRecordBytes(t *testing.T) {
	tel := &recordingTelemetry{}
	RecordBytes(context.Background(), tel, "test.bytes", 4096)

	if len(tel.counters) != 1 || tel.counters[0].value != 4096 {
		t.Errorf("Expected one counter record of 4096, got %+v", tel.counters)
	}
}
