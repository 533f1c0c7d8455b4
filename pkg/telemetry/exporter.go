// ABOUTME: Exporter factory turning Config.Exporters into OpenTelemetry metric and span exporters
// ABOUTME: stdout exports both signals; otlp exports spans to a gRPC collector

package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

func stdoutWriter(cfg Config) io.Writer {
	if cfg.StdoutWriter != nil {
		return cfg.StdoutWriter
	}
	return os.Stdout
}

// createMetricExporters creates the metric exporters named in cfg. OTLP has
// no metric exporter here, so a config without stdout gets no metrics.
func createMetricExporters(cfg Config) ([]metric.Exporter, error) {
	var exporters []metric.Exporter

	if cfg.HasExporter(ExporterStdout) {
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(stdoutWriter(cfg)))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}

	return exporters, nil
}

// createTraceExporters creates the span exporters named in cfg.
func createTraceExporters(cfg Config) ([]trace.SpanExporter, error) {
	var exporters []trace.SpanExporter

	for _, name := range cfg.Exporters {
		switch name {
		case ExporterOTLP:
			exporter, err := otlptracegrpc.New(
				context.Background(),
				otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithTimeout(cfg.ExportTimeout),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)

		case ExporterStdout:
			exporter, err := stdouttrace.New(stdouttrace.WithWriter(stdoutWriter(cfg)))
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)
		}
	}

	return exporters, nil
}
