// ABOUTME: Walker telemetry metrics interface and implementation for tracking tree lookups
// ABOUTME: Records lookup latency and depth, page reads, batch fan-out and walk failures

package walker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/wtdescent/pkg/telemetry"
)

// WalkerMetrics defines the interface for walker telemetry operations.
// All metrics are optional - implementations can safely be no-op.
type WalkerMetrics interface {
	telemetry.ComponentMetrics

	// RecordLookup records a finished walk and how it ended.
	RecordLookup(ctx context.Context, duration time.Duration, pages, depth uint32, status string)

	// RecordPageRead records one page fetched from the page source.
	RecordPageRead(ctx context.Context, duration time.Duration, bytes int64, pageType string)

	// RecordFailure records a walk that stopped on an error.
	RecordFailure(ctx context.Context, errorType string, depth uint32)

	// RecordBatch records a batch of lookups.
	RecordBatch(ctx context.Context, duration time.Duration, keys int, failures int)
}

type walkerMetrics struct {
	tel telemetry.Telemetry
}

// NewWalkerMetrics creates a new walker metrics implementation.
// If tel is nil, returns a no-op implementation.
func NewWalkerMetrics(tel telemetry.Telemetry) WalkerMetrics {
	if tel == nil {
		return &noopWalkerMetrics{}
	}
	return &walkerMetrics{tel: tel}
}

// NewNoopWalkerMetrics creates a no-op walker metrics implementation.
func NewNoopWalkerMetrics() WalkerMetrics {
	return &noopWalkerMetrics{}
}

// RecordLookup records lookup latency, depth and outcome.
func (m *walkerMetrics) RecordLookup(ctx context.Context, duration time.Duration, pages, depth uint32, status string) {
	m.tel.RecordHistogram(ctx, "wtdescent.walker.lookup.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWalker),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeLookup),
		attribute.String(telemetry.AttrStatus, status),
	)

	m.tel.RecordHistogram(ctx, "wtdescent.walker.lookup.depth", float64(depth),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWalker),
	)

	m.tel.RecordCounter(ctx, "wtdescent.walker.pages.visited", int64(pages),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWalker),
	)

	m.tel.RecordCounter(ctx, "wtdescent.walker.lookups.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWalker),
		attribute.String(telemetry.AttrStatus, status),
	)
}

// RecordPageRead records page fetch latency and size.
func (m *walkerMetrics) RecordPageRead(ctx context.Context, duration time.Duration, bytes int64, pageType string) {
	m.tel.RecordHistogram(ctx, "wtdescent.walker.read.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWalker),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeRead),
		attribute.String(telemetry.AttrPageType, pageType),
	)

	telemetry.RecordBytes(ctx, m.tel, "wtdescent.walker.read.bytes", bytes,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWalker),
		attribute.String(telemetry.AttrPageType, pageType),
	)
}

// RecordFailure records a failed walk.
func (m *walkerMetrics) RecordFailure(ctx context.Context, errorType string, depth uint32) {
	m.tel.RecordCounter(ctx, "wtdescent.walker.failures.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWalker),
		attribute.String(telemetry.AttrErrorType, errorType),
		attribute.Int(telemetry.AttrDepth, int(depth)),
	)
}

// RecordBatch records batch lookup metrics.
func (m *walkerMetrics) RecordBatch(ctx context.Context, duration time.Duration, keys int, failures int) {
	status := telemetry.StatusSuccess
	if failures > 0 {
		status = telemetry.StatusError
	}

	m.tel.RecordHistogram(ctx, "wtdescent.walker.batch.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWalker),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeBatch),
	)

	m.tel.RecordCounter(ctx, "wtdescent.walker.batch.keys", int64(keys),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWalker),
	)

	m.tel.RecordCounter(ctx, "wtdescent.walker.batch.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWalker),
		attribute.String(telemetry.AttrStatus, status),
	)
}

// Close releases any resources held by the metrics implementation.
func (m *walkerMetrics) Close() error {
	return nil
}

// noopWalkerMetrics provides a no-operation implementation for disabled telemetry.
type noopWalkerMetrics struct{}

func (n *noopWalkerMetrics) RecordLookup(ctx context.Context, duration time.Duration, pages, depth uint32, status string) {
}

func (n *noopWalkerMetrics) RecordPageRead(ctx context.Context, duration time.Duration, bytes int64, pageType string) {
}

func (n *noopWalkerMetrics) RecordFailure(ctx context.Context, errorType string, depth uint32) {}

func (n *noopWalkerMetrics) RecordBatch(ctx context.Context, duration time.Duration, keys int, failures int) {
}

func (n *noopWalkerMetrics) Close() error { return nil }
