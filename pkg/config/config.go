// Package config loads and validates vsltail's static configuration: logging,
// telemetry, metrics, the input source, and the pipeline tuning knobs that
// govern stream framing and record retention.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/vsl-go/vslcore/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the vsltail configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (VSLTAIL_*), for keys present in the file
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// When no configuration file is found, Load returns the defaults and
// environment variables are not read.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is loaded and validated, but the run command does not
	// read it: on a shutdown signal the pipeline flushes in-flight
	// transactions with no time limit.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Input selects where the VSL byte stream is read from.
	Input InputConfig `mapstructure:"input" yaml:"input"`

	// Pipeline tunes the stream framing, record retention and eviction
	// behavior of the correlation engine.
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`

	// Output controls how resolved records are rendered to the sink.
	Output OutputConfig `mapstructure:"output" yaml:"output"`
}

// OutputConfig selects the sink format and the level of detail it renders.
type OutputConfig struct {
	// Format is one of "json" or "ncsa". ncsa renders one Apache
	// combined-log-format line per resolved client request and has no
	// representation for orphan backends or session-level metadata.
	Format string `mapstructure:"format" validate:"required,oneof=json ncsa" yaml:"format"`

	// KeepRawHeaders turns off the normalized name-indexed header map that
	// JSON output otherwise attaches to orphan client and orphan backend
	// records. The full ordered header list is always included.
	KeepRawHeaders bool `mapstructure:"keep_raw_headers" yaml:"keep_raw_headers"`
}

// InputConfig selects the source of the VSL byte stream.
type InputConfig struct {
	// Source is one of "stdin", "file" or "unix".
	Source string `mapstructure:"source" validate:"required,oneof=stdin file unix" yaml:"source"`

	// Path is the file path or unix socket path when Source is "file" or "unix".
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// PipelineConfig tunes the stream buffer, record store, and eviction
// behavior of the correlation engine.
type PipelineConfig struct {
	// StreamBufferSize bounds the amount of unparsed input the stream buffer
	// will hold before a fill is required to make progress.
	// Supports human-readable sizes: "64KiB", "1Mi", "4096".
	StreamBufferSize bytesize.ByteSize `mapstructure:"stream_buffer_size" yaml:"stream_buffer_size"`

	// MaxRecordSlots bounds the number of in-flight VXID builder slots the
	// record store will retain before evicting the oldest entries.
	MaxRecordSlots int `mapstructure:"max_record_slots" validate:"required,gt=0" yaml:"max_record_slots"`

	// MaxEpochDiff is the number of store epochs a slot may go untouched
	// before it becomes eligible for soft eviction.
	MaxEpochDiff uint64 `mapstructure:"max_epoch_diff" validate:"required,gt=0" yaml:"max_epoch_diff"`

	// EvictFactor is the fraction of MaxRecordSlots evicted, oldest first,
	// when the store is full and a new VXID needs a slot.
	EvictFactor float64 `mapstructure:"evict_factor" validate:"required,gt=0,lte=1" yaml:"evict_factor"`

	// StatEpochInterval controls how many epochs elapse between periodic
	// stat ticks, each of which reports the store size and pending sessions
	// and delivers long-unclaimed client and backend records as orphans.
	// ApplyDefaults replaces 0 with 1000 and validation requires a positive
	// value, so the ticks cannot be switched off from the configuration.
	StatEpochInterval uint64 `mapstructure:"stat_epoch_interval" validate:"required,gt=0" yaml:"stat_epoch_interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP server are enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file cannot be found.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  vsltail init\n\n"+
				"Or specify a custom config file:\n"+
				"  vsltail <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  vsltail init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("VSLTAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize so
// config files can use human-readable sizes like "64KiB" or "1Mi".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration so config files can
// use human-readable durations like "30s" or "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "vsltail")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "vsltail")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
