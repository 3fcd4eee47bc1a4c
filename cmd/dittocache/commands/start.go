package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittocache/cmd/dittocache/cmdutil"
	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/internal/telemetry"
	"github.com/marmos91/dittocache/pkg/cachemanager"
	"github.com/marmos91/dittocache/pkg/config"
	"github.com/marmos91/dittocache/pkg/downloader"
	"github.com/marmos91/dittocache/pkg/metrics"
	prommetrics "github.com/marmos91/dittocache/pkg/metrics/prometheus"
	"github.com/marmos91/dittocache/pkg/rpc"
	"github.com/marmos91/dittocache/pkg/worker"
)

var (
	noReadyLine bool
	noWatch     bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a cache worker",
	Long: `Start a cache worker in the foreground.

The worker owns the cache directory and the metadata store and serves them on
the unix socket <worker.socket_dir>/<worker.namespace>.<worker.id>.sock.
Once the socket accepts calls it prints "READY <socket path>" on stdout, which
is what a parent process waits for after spawning it.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/dittocache/config.yaml.

Examples:
  # Start with the default configuration
  dittocache start

  # Start with custom config file
  dittocache start --config /etc/dittocache/config.yaml

  # Start with environment variable overrides
  DITTOCACHE_LOGGING_LEVEL=DEBUG DITTOCACHE_CACHE_MAX_SIZE=4GiB dittocache start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&noReadyLine, "no-ready-line", false, "Do not print the READY line on stdout")
	startCmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not hot-reload logging settings when the config file changes")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instanceID := uuid.New().String()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittocache",
		ServiceVersion: Version,
		InstanceID:     instanceID,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		// ctx is cancelled by then; flush on a fresh deadline.
		flushCtx, flushCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer flushCancel()
		if err := telemetryShutdown(flushCtx); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittocache",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		WorkerID:       instanceID,
		Namespace:      cfg.Worker.Namespace,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("DittoCache worker starting", "version", Version, "instance", instanceID)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	// Collectors are created below; the registry must exist first.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Metadata store close error", logger.Err(err))
		}
	}()

	registry, closeSources := buildSources(ctx, cfg)
	defer func() { _ = closeSources() }()

	factory := downloader.NewFactory(ctx, downloader.FactoryConfig{
		Root: cfg.Cache.Root,
		Transcoder: &downloader.FFmpegTranscoder{
			Path:      cfg.Transcoder.FFmpegPath,
			InputArgs: cfg.Transcoder.InputArgs,
		},
	}, registry)

	manager := cachemanager.New(cachemanager.Config{
		MaxSize:       int64(cfg.Cache.MaxSize),
		EvictInterval: cfg.Cache.EvictInterval,
	}, factory.Downloader,
		cachemanager.WithStore(store),
		cachemanager.WithMetrics(prommetrics.NewCacheMetrics()),
	)
	logger.Info("Cache configured",
		logger.KeyPath, cfg.Cache.Root,
		logger.KeyCacheMax, cfg.Cache.MaxSize.String(),
		"evict_interval", cfg.Cache.EvictInterval)

	responder := rpc.NewResponder(rpc.ResponderConfig{
		Address: cfg.Worker.SocketPath(),
		Metrics: prommetrics.NewRPCMetrics(),
		OnReady: func(addr string) {
			if noReadyLine {
				return
			}
			if err := worker.WriteReady(os.Stdout, addr); err != nil {
				logger.Warn("Failed to write ready line", logger.Err(err))
			}
		},
	})
	worker.NewService(manager, store).Register(responder)

	if reg := metrics.GetRegistry(); reg != nil {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, reg, store.Healthcheck)
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("Metrics server error", logger.Err(err))
			}
		}()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		_ = manager.Run(ctx)
	}()

	if watchPath := getWatchPath(); !noWatch && watchPath != "" {
		go func() {
			if err := config.Watch(ctx, watchPath, config.ApplyLogging); err != nil {
				logger.Warn("Configuration watcher stopped", logger.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- responder.Serve(ctx, manager.Restore)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Worker is running. Press Ctrl+C to stop.")

	var serveErr error
	served := false
	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown", "signal", sig.String())
	case serveErr = <-serverDone:
		served = true
		if serveErr != nil {
			logger.Error("Worker error", logger.Err(serveErr))
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := responder.Stop(shutdownCtx); err != nil {
		logger.Warn("Responder did not stop in time", logger.Err(err))
	}
	if !served {
		if err := <-serverDone; err != nil && !errors.Is(err, rpc.ErrClosed) {
			serveErr = err
		}
	}

	select {
	case <-sweepDone:
	case <-shutdownCtx.Done():
		logger.Warn("Eviction sweep did not stop in time")
	}

	if serveErr != nil {
		return serveErr
	}
	logger.Info("Worker stopped gracefully")
	return nil
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

// getWatchPath returns the config file to watch, or "" when running on
// defaults only.
func getWatchPath() string {
	if GetConfigFile() != "" {
		return GetConfigFile()
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return ""
}
