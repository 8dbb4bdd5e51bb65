package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const sampleConfigTemplate = `# vsltail Configuration File
#
# All options may be overridden with environment variables using the
# VSLTAIL_<SECTION>_<KEY> convention, e.g. VSLTAIL_LOGGING_LEVEL=DEBUG.

logging:
  level: "INFO"
  format: "text"
  output: "stdout"

telemetry:
  enabled: false
  endpoint: "localhost:4317"
  insecure: true
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: "http://localhost:4040"

metrics:
  enabled: false
  port: 9090

shutdown_timeout: 10s

# input selects where the VSL byte stream comes from: stdin, file, or unix.
input:
  source: "stdin"

# pipeline tunes stream framing and the VXID-keyed record store.
pipeline:
  stream_buffer_size: 64KiB
  max_record_slots: 4096
  max_epoch_diff: 1000
  evict_factor: 0.8
  stat_epoch_interval: 1000

# output selects the sink format: json (one object per line, the default)
# or ncsa (Apache combined-log-format, one line per resolved client request).
output:
  format: "json"
  keep_raw_headers: false
`

// InitConfig creates a sample configuration file at the default location.
// Returns the path the file was written to.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfigTemplate), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
