// ABOUTME: OpenTelemetry SDK provider: meter and tracer providers built from Config with cached instruments
// ABOUTME: Disabled configs yield the no-op implementation; Shutdown flushes both providers

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/KevoDB/wtdescent"

// TelemetryProvider implements Telemetry on the OpenTelemetry SDK.
type TelemetryProvider struct {
	config         Config
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          metric.Meter
	tracer         oteltrace.Tracer

	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
}

// New creates a telemetry instance for cfg. A disabled config returns the
// no-op implementation.
func New(cfg Config) (Telemetry, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	res := sdkresource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	metricExporters, err := createMetricExporters(cfg)
	if err != nil {
		return nil, err
	}
	traceExporters, err := createTraceExporters(cfg)
	if err != nil {
		return nil, err
	}

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, exp := range metricExporters {
		reader := sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithInterval(cfg.BatchTimeout),
			sdkmetric.WithTimeout(cfg.ExportTimeout),
		)
		meterOpts = append(meterOpts, sdkmetric.WithReader(reader))
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}
	for _, exp := range traceExporters {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exp,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithExportTimeout(cfg.ExportTimeout),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
		))
	}

	mp := sdkmetric.NewMeterProvider(meterOpts...)
	tp := sdktrace.NewTracerProvider(traceOpts...)

	return &TelemetryProvider{
		config:         cfg,
		meterProvider:  mp,
		tracerProvider: tp,
		meter:          mp.Meter(instrumentationName),
		tracer:         tp.Tracer(instrumentationName),
		histograms:     make(map[string]metric.Float64Histogram),
		counters:       make(map[string]metric.Int64Counter),
	}, nil
}

func (p *TelemetryProvider) histogram(name string) (metric.Float64Histogram, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h, nil
	}
	h, err := p.meter.Float64Histogram(name)
	if err != nil {
		return nil, err
	}
	p.histograms[name] = h
	return h, nil
}

func (p *TelemetryProvider) counter(name string) (metric.Int64Counter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c, nil
	}
	c, err := p.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	p.counters[name] = c
	return c, nil
}

// RecordHistogram records value in the named histogram. Instrument creation
// errors drop the sample.
func (p *TelemetryProvider) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	h, err := p.histogram(name)
	if err != nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordCounter adds value to the named counter.
func (p *TelemetryProvider) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	c, err := p.counter(name)
	if err != nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.Add(ctx, value, metric.WithAttributes(attrs...))
}

// StartSpan starts a span on the provider's tracer.
func (p *TelemetryProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.tracer.Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// Shutdown flushes and stops both providers.
func (p *TelemetryProvider) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.tracerProvider.Shutdown(ctx),
		p.meterProvider.Shutdown(ctx),
	)
}
