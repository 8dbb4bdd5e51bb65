package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default format text, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("expected default output stdout, got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected default shutdown timeout 10s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Input.Source != "stdin" {
		t.Errorf("expected default input source stdin, got %q", cfg.Input.Source)
	}
}

func TestApplyDefaults_PipelineDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Pipeline.StreamBufferSize != 64*1024 {
		t.Errorf("expected default stream buffer 64KiB, got %d", cfg.Pipeline.StreamBufferSize)
	}
	if cfg.Pipeline.MaxRecordSlots != 4096 {
		t.Errorf("expected default max_record_slots 4096, got %d", cfg.Pipeline.MaxRecordSlots)
	}
	if cfg.Pipeline.MaxEpochDiff != 1000 {
		t.Errorf("expected default max_epoch_diff 1000, got %d", cfg.Pipeline.MaxEpochDiff)
	}
	if cfg.Pipeline.EvictFactor != 0.8 {
		t.Errorf("expected default evict_factor 0.8, got %v", cfg.Pipeline.EvictFactor)
	}
	if cfg.Pipeline.StatEpochInterval != 1000 {
		t.Errorf("expected default stat_epoch_interval 1000, got %d", cfg.Pipeline.StatEpochInterval)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Pipeline: PipelineConfig{
			MaxRecordSlots: 10,
			EvictFactor:    0.5,
		},
	}
	ApplyDefaults(cfg)

	if cfg.Pipeline.MaxRecordSlots != 10 {
		t.Errorf("expected explicit max_record_slots to be preserved, got %d", cfg.Pipeline.MaxRecordSlots)
	}
	if cfg.Pipeline.EvictFactor != 0.5 {
		t.Errorf("expected explicit evict_factor to be preserved, got %v", cfg.Pipeline.EvictFactor)
	}
}

func TestApplyDefaults_NormalizesLogLevelCase(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("expected level to be normalized to DEBUG, got %q", cfg.Logging.Level)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("expected default config to be valid, got: %v", err)
	}
}
