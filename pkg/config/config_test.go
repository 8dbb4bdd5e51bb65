package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

pipeline:
  stream_buffer_size: 128KiB
  max_record_slots: 2048

input:
  source: "stdin"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected default shutdown_timeout 10s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Pipeline.MaxRecordSlots != 2048 {
		t.Errorf("Expected max_record_slots 2048, got %d", cfg.Pipeline.MaxRecordSlots)
	}
	if cfg.Pipeline.StreamBufferSize != 128*1024 {
		t.Errorf("Expected stream_buffer_size 128KiB, got %d", cfg.Pipeline.StreamBufferSize)
	}
	// Fields not present in the file still get their defaults applied.
	if cfg.Pipeline.EvictFactor != 0.8 {
		t.Errorf("Expected default evict_factor 0.8, got %v", cfg.Pipeline.EvictFactor)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.Input.Source != "stdin" {
		t.Errorf("Expected default input source 'stdin', got %q", cfg.Input.Source)
	}
}

func TestLoad_InvalidConfigFails(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "NOPE"
  format: "text"
  output: "stdout"

input:
  source: "stdin"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "DEBUG"

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load after SaveConfig failed: %v", err)
	}
	if loaded.Logging.Level != "DEBUG" {
		t.Errorf("Expected level DEBUG after round-trip, got %q", loaded.Logging.Level)
	}
}

func TestMustLoad_MissingFileGivesHelpfulError(t *testing.T) {
	tmpDir := t.TempDir()
	missing := filepath.Join(tmpDir, "missing.yaml")

	_, err := MustLoad(missing)
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
