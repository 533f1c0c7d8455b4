// ABOUTME: Configuration for the telemetry provider: service identity, exporters, sampling and batching
// ABOUTME: Values come from defaults, the JSON config file, and WTDESCENT_TELEMETRY_* environment overrides

package telemetry

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Exporter names accepted in Config.Exporters
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config holds all configuration for telemetry providers and exporters.
type Config struct {
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`

	// Enabled controls whether telemetry is active
	Enabled bool `json:"enabled"`

	// Exporters lists the exporters to use: stdout, otlp
	Exporters []string `json:"exporters"`

	// SampleRate controls trace sampling (0.0 to 1.0)
	SampleRate float64 `json:"sample_rate"`

	// OTLPEndpoint is the host:port of the OTLP gRPC collector
	OTLPEndpoint string `json:"otlp_endpoint"`

	ExportTimeout      time.Duration `json:"export_timeout"`
	BatchTimeout       time.Duration `json:"batch_timeout"`
	MaxQueueSize       int           `json:"max_queue_size"`
	MaxExportBatchSize int           `json:"max_export_batch_size"`

	// StdoutWriter overrides where the stdout exporters write
	StdoutWriter io.Writer `json:"-"`
}

// DefaultConfig returns a configuration with telemetry switched off and
// defaults for everything else.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "wtdescent",
		ServiceVersion:     "development",
		Enabled:            false,
		Exporters:          []string{ExporterStdout},
		SampleRate:         1.0,
		OTLPEndpoint:       "localhost:4317",
		ExportTimeout:      30 * time.Second,
		BatchTimeout:       5 * time.Second,
		MaxQueueSize:       2048,
		MaxExportBatchSize: 512,
	}
}

// LoadFromEnv overrides fields from WTDESCENT_TELEMETRY_* variables.
// Unparseable values are ignored.
func (c *Config) LoadFromEnv() {
	if val := os.Getenv("WTDESCENT_TELEMETRY_SERVICE_NAME"); val != "" {
		c.ServiceName = val
	}
	if val := os.Getenv("WTDESCENT_TELEMETRY_SERVICE_VERSION"); val != "" {
		c.ServiceVersion = val
	}
	if val := os.Getenv("WTDESCENT_TELEMETRY_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Enabled = enabled
		}
	}
	if val := os.Getenv("WTDESCENT_TELEMETRY_EXPORTERS"); val != "" {
		c.Exporters = nil
		for _, name := range strings.Split(val, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Exporters = append(c.Exporters, name)
			}
		}
	}
	if val := os.Getenv("WTDESCENT_TELEMETRY_SAMPLE_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.SampleRate = rate
		}
	}
	if val := os.Getenv("WTDESCENT_TELEMETRY_OTLP_ENDPOINT"); val != "" {
		c.OTLPEndpoint = val
	}
	if val := os.Getenv("WTDESCENT_TELEMETRY_EXPORT_TIMEOUT"); val != "" {
		if timeout, err := time.ParseDuration(val); err == nil {
			c.ExportTimeout = timeout
		}
	}
	if val := os.Getenv("WTDESCENT_TELEMETRY_BATCH_TIMEOUT"); val != "" {
		if timeout, err := time.ParseDuration(val); err == nil {
			c.BatchTimeout = timeout
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name cannot be empty")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version cannot be empty")
	}
	if c.SampleRate < 0.0 || c.SampleRate > 1.0 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got %f", c.SampleRate)
	}
	if c.ExportTimeout <= 0 {
		return fmt.Errorf("export_timeout must be positive, got %s", c.ExportTimeout)
	}
	if c.BatchTimeout <= 0 {
		return fmt.Errorf("batch_timeout must be positive, got %s", c.BatchTimeout)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be positive, got %d", c.MaxQueueSize)
	}
	if c.MaxExportBatchSize <= 0 || c.MaxExportBatchSize > c.MaxQueueSize {
		return fmt.Errorf("max_export_batch_size must be between 1 and max_queue_size, got %d", c.MaxExportBatchSize)
	}

	for _, exporter := range c.Exporters {
		switch exporter {
		case ExporterStdout:
		case ExporterOTLP:
			if c.OTLPEndpoint == "" {
				return fmt.Errorf("otlp exporter requires otlp_endpoint")
			}
		default:
			return fmt.Errorf("invalid exporter: %s, valid options are: stdout, otlp", exporter)
		}
	}

	return nil
}

// HasExporter returns true if the specified exporter is configured.
func (c *Config) HasExporter(name string) bool {
	for _, exporter := range c.Exporters {
		if exporter == name {
			return true
		}
	}
	return false
}
