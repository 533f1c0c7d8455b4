package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig("/data/tree.wt")

	if cfg.Version != CurrentConfigVersion {
		t.Errorf("expected version %d, got %d", CurrentConfigVersion, cfg.Version)
	}
	if cfg.TreePath != "/data/tree.wt" {
		t.Errorf("expected tree path /data/tree.wt, got %s", cfg.TreePath)
	}
	if cfg.TraceCodec != TraceCodecZstd {
		t.Errorf("expected zstd trace codec, got %s", cfg.TraceCodec)
	}
	if cfg.Telemetry.Enabled {
		t.Error("expected telemetry disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"version", func(c *Config) { c.Version = 0 }},
		{"tree path", func(c *Config) { c.TreePath = "" }},
		{"batch concurrency", func(c *Config) { c.MaxBatchConcurrency = 0 }},
		{"visit log capacity", func(c *Config) { c.VisitLogCapacity = -1 }},
		{"trace codec", func(c *Config) { c.TraceCodec = "lz4" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"root override", func(c *Config) { c.RootSize = 4096 }},
		{"telemetry", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.ServiceName = ""
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig("tree.wt")
			tc.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "wtdescent.json")

	cfg := NewDefaultConfig(filepath.Join(dir, "tree.wt"))
	cfg.Update(func(c *Config) {
		c.VerifyChecksums = true
		c.TraceCodec = TraceCodecSnappy
		c.RootOffset = 8192
		c.RootSize = 4096
	})

	if err := cfg.Save(path); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file should not remain")
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if loaded.TreePath != cfg.TreePath || !loaded.VerifyChecksums || loaded.TraceCodec != TraceCodecSnappy {
		t.Errorf("loaded config mismatch: %+v", loaded)
	}
	if loaded.RootOffset != 8192 || loaded.RootSize != 4096 {
		t.Errorf("root override mismatch: (%d, %d)", loaded.RootOffset, loaded.RootSize)
	}
	if loaded.Telemetry.ServiceName != "wtdescent" {
		t.Errorf("telemetry section mismatch: %+v", loaded.Telemetry)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}

	garbage := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbage, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := LoadConfig(garbage); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for garbage, got %v", err)
	}

	// Fields missing from the file keep their defaults, but a missing tree
	// path is still invalid.
	partial := filepath.Join(dir, "partial.json")
	if err := os.WriteFile(partial, []byte(`{"version": 1}`), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := LoadConfig(partial); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig without a tree path, got %v", err)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	cfg := NewDefaultConfig("")
	if err := cfg.Save(filepath.Join(t.TempDir(), "c.json")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
