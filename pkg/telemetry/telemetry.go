// ABOUTME: Telemetry interface over OpenTelemetry used to instrument tree walks, page reads and the RPC service
// ABOUTME: Includes a no-op implementation and shared attribute names for consistent metric labels

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry records metrics and spans without exposing the OpenTelemetry SDK
// to callers.
type Telemetry interface {
	// RecordHistogram records a histogram value with optional attributes.
	RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)

	// RecordCounter records a counter increment with optional attributes.
	RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue)

	// StartSpan creates a new tracing span with the given name and attributes.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// Shutdown flushes pending data and stops the providers.
	Shutdown(ctx context.Context) error
}

// ComponentMetrics is implemented by per-component metrics wrappers.
type ComponentMetrics interface {
	Close() error
}

// NoopTelemetry discards everything.
type NoopTelemetry struct{}

// NewNoop creates a new no-operation telemetry instance.
func NewNoop() Telemetry {
	return &NoopTelemetry{}
}

func (n *NoopTelemetry) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
}

func (n *NoopTelemetry) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
}

// StartSpan returns the original context and the span already in it.
func (n *NoopTelemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, trace.SpanFromContext(ctx)
}

func (n *NoopTelemetry) Shutdown(ctx context.Context) error {
	return nil
}

// RecordDuration records the seconds since start in a histogram.
func RecordDuration(ctx context.Context, tel Telemetry, name string, start time.Time, attrs ...attribute.KeyValue) {
	tel.RecordHistogram(ctx, name, time.Since(start).Seconds(), attrs...)
}

// RecordBytes records a byte count in a counter.
func RecordBytes(ctx context.Context, tel Telemetry, name string, bytes int64, attrs ...attribute.KeyValue) {
	tel.RecordCounter(ctx, name, bytes, attrs...)
}

// Attribute keys
const (
	AttrOperationType = "operation.type"
	AttrComponent     = "component"
	AttrStatus        = "status"
	AttrErrorType     = "error.type"
	AttrDepth         = "tree.depth"
	AttrPageType      = "page.type"
	AttrPageOffset    = "page.offset"
	AttrReason        = "reason"
)

// Attribute values
const (
	OpTypeLookup = "lookup"
	OpTypeGet    = "get"
	OpTypeBatch  = "batch"
	OpTypeRead   = "read"

	StatusSuccess   = "success"
	StatusError     = "error"
	StatusExhausted = "exhausted"
	StatusNotFound  = "not_found"

	ComponentWalker  = "walker"
	ComponentService = "service"
	ComponentTree    = "treefile"
)
