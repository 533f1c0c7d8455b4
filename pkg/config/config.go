package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevoDB/wtdescent/pkg/telemetry"
)

const CurrentConfigVersion = 1

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("config file not found")
)

// Trace codecs
const (
	TraceCodecNone   = "none"
	TraceCodecZstd   = "zstd"
	TraceCodecSnappy = "snappy"
)

type Config struct {
	Version int `json:"version"`

	// Tree file
	TreePath        string `json:"tree_path"`
	VerifyChecksums bool   `json:"verify_checksums"`
	// RootOffset and RootSize, when RootSize is non-zero, replace the root
	// address recorded in the tree file
	RootOffset uint64 `json:"root_offset,omitempty"`
	RootSize   uint64 `json:"root_size,omitempty"`

	// Walker
	MaxBatchConcurrency int    `json:"max_batch_concurrency"`
	VisitLogCapacity    int    `json:"visit_log_capacity"`
	TraceCodec          string `json:"trace_codec"`

	// Logging
	LogLevel     string `json:"log_level"`
	LogFile      string `json:"log_file,omitempty"`
	LogMaxSizeMB int    `json:"log_max_size_mb"`
	LogJSON      bool   `json:"log_json"`

	// Service
	ListenAddress string `json:"listen_address"`

	Telemetry telemetry.Config `json:"telemetry"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config for the tree file at treePath
func NewDefaultConfig(treePath string) *Config {
	return &Config{
		Version:             CurrentConfigVersion,
		TreePath:            treePath,
		MaxBatchConcurrency: 8,
		VisitLogCapacity:    1024,
		TraceCodec:          TraceCodecZstd,
		LogLevel:            "info",
		LogMaxSizeMB:        64,
		ListenAddress:       "localhost:50061",
		Telemetry:           telemetry.DefaultConfig(),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

func (c *Config) validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}
	if c.TreePath == "" {
		return fmt.Errorf("%w: tree path not specified", ErrInvalidConfig)
	}
	if c.MaxBatchConcurrency <= 0 {
		return fmt.Errorf("%w: max batch concurrency must be positive", ErrInvalidConfig)
	}
	if c.VisitLogCapacity <= 0 {
		return fmt.Errorf("%w: visit log capacity must be positive", ErrInvalidConfig)
	}

	switch c.TraceCodec {
	case TraceCodecNone, TraceCodecZstd, TraceCodecSnappy:
	default:
		return fmt.Errorf("%w: unknown trace codec %q", ErrInvalidConfig, c.TraceCodec)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}

	if c.RootSize != 0 && c.RootOffset == 0 {
		return fmt.Errorf("%w: root override needs a non-zero offset", ErrInvalidConfig)
	}

	if c.Telemetry.Enabled {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("%w: telemetry: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}

// LoadConfig reads and validates the JSON config at path
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig("")
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path through a temporary file
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
