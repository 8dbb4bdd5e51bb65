package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vsl-go/vslcore/internal/logger"
	"github.com/vsl-go/vslcore/internal/telemetry"
	"github.com/vsl-go/vslcore/pkg/config"
	"github.com/vsl-go/vslcore/pkg/vslmetrics"
	"github.com/vsl-go/vslcore/pkg/vslpipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Correlate a VSL stream and emit resolved records",
	Long: `Run reads the configured VSL input source to completion (or until
interrupted), assembling client, backend, and session records and writing
each one to stdout as it resolves.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/vsltail/config.yaml.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "vsltail",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "vsltail",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	configSource := getConfigSource(GetConfigFile())
	logger.Info("configuration loaded", "source", configSource)

	if configSource != "defaults" {
		go watchConfig(ctx, configSource)
	}

	var metrics vslmetrics.Metrics = vslmetrics.Noop{}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = vslmetrics.NewPrometheus(reg)
		metricsSrv := startMetricsServer(cfg.Metrics.Port, reg)
		defer func() { _ = metricsSrv.Close() }()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("metrics disabled")
	}

	source, closeSource, err := openInput(cfg.Input)
	if err != nil {
		return fmt.Errorf("failed to open input source: %w", err)
	}
	defer closeSource()

	sink, err := newSink(cfg.Output)
	if err != nil {
		return err
	}
	pipeline := vslpipeline.New(source, sink, metrics, logger.With(), vslpipeline.OptionsFromConfig(cfg.Pipeline))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, flushing in-flight transactions")
		cancel()
	}()

	logger.Info("pipeline started", "source", cfg.Input.Source)
	if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pipeline stopped: %w", err)
	}
	logger.Info("pipeline stopped")
	return nil
}

// openInput resolves the configured input source into a readable stream
// and a cleanup function. stdin is never closed by the cleanup, since the
// process doesn't own it.
func openInput(cfg config.InputConfig) (io.Reader, func(), error) {
	switch cfg.Source {
	case "stdin":
		return os.Stdin, func() {}, nil
	case "file":
		f, err := os.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	case "unix":
		conn, err := net.Dial("unix", cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { _ = conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown input source %q", cfg.Source)
	}
}

// watchConfig reloads the logging level whenever the config file on disk
// changes. Everything else (input source, pipeline tuning) only takes
// effect on the next run: re-pointing an in-flight stream or resizing the
// record store mid-pipeline isn't supported.
func watchConfig(ctx context.Context, path string) {
	err := config.Watch(ctx, path,
		func(cfg *config.Config) {
			logger.SetLevel(cfg.Logging.Level)
			logger.Info("configuration reloaded", "source", path, "logging_level", cfg.Logging.Level)
		},
		func(err error) {
			logger.Error("configuration reload failed", "error", err)
		},
	)
	if err != nil {
		logger.Error("config watcher stopped", "error", err)
	}
}

// newSink builds the configured output sink. json attaches a supplementary
// normalized-header index unless KeepRawHeaders is set; ncsa has no header
// representation at all, so the flag is a no-op there.
func newSink(cfg config.OutputConfig) (vslpipeline.Sink, error) {
	switch cfg.Format {
	case "", "json":
		return vslpipeline.NewJSONSink(os.Stdout).WithHeaderIndexing(!cfg.KeepRawHeaders), nil
	case "ncsa":
		return vslpipeline.NewNCSASink(os.Stdout), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Format)
	}
}

func startMetricsServer(port int, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
