package config

import (
	"strings"
	"time"

	"github.com/vsl-go/vslcore/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default strategy: zero values (0, "", false) are replaced with defaults;
// explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyInputDefaults(&cfg.Input)
	applyPipelineDefaults(&cfg.Pipeline)
	applyOutputDefaults(&cfg.Output)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyInputDefaults sets input source defaults.
func applyInputDefaults(cfg *InputConfig) {
	if cfg.Source == "" {
		cfg.Source = "stdin"
	}
}

// applyPipelineDefaults sets the stream/record-store tuning defaults.
// These mirror varnishncsa's practical defaults for a moderately busy cache:
// a few hundred concurrent in-flight transactions and a buffer large enough
// to hold a handful of records without refilling on every parse.
func applyPipelineDefaults(cfg *PipelineConfig) {
	if cfg.StreamBufferSize == 0 {
		cfg.StreamBufferSize = 64 * bytesize.KiB
	}
	if cfg.MaxRecordSlots == 0 {
		cfg.MaxRecordSlots = 4096
	}
	if cfg.MaxEpochDiff == 0 {
		cfg.MaxEpochDiff = 1000
	}
	if cfg.EvictFactor == 0 {
		cfg.EvictFactor = 0.8
	}
	if cfg.StatEpochInterval == 0 {
		cfg.StatEpochInterval = 1000
	}
}

// applyOutputDefaults sets output sink defaults.
func applyOutputDefaults(cfg *OutputConfig) {
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Useful for generating sample configuration files, testing, and documentation.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Input: InputConfig{
			Source: "stdin",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
