package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittocache/internal/bytesize"
	httpsource "github.com/marmos91/dittocache/pkg/downloader/source/http"
	s3source "github.com/marmos91/dittocache/pkg/downloader/source/s3"
	"github.com/marmos91/dittocache/pkg/storage"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
// Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyCacheDefaults(&cfg.Cache)
	applyTranscoderDefaults(&cfg.Transcoder)
	cfg.Database.ApplyDefaults()
	applyMetadataDefaults(&cfg.Metadata)
	applyWorkerDefaults(&cfg.Worker)
	applySourcesDefaults(&cfg.Sources)
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

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults only assigns a port when metrics are enabled.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Root == "" {
		cfg.Root = filepath.Join(storage.DataDir(), "cache")
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 2 * bytesize.GiB
	}
	if cfg.EvictInterval == 0 {
		cfg.EvictInterval = time.Minute
	}
}

func applyTranscoderDefaults(cfg *TranscoderConfig) {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
}

func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "sql"
	}
	if cfg.Backend == "badger" && cfg.Badger.Path == "" {
		cfg.Badger.Path = filepath.Join(storage.DataDir(), "badger")
	}
}

func applyWorkerDefaults(cfg *WorkerConfig) {
	if cfg.Namespace == "" {
		cfg.Namespace = "dittocache"
	}
	if cfg.ID == "" {
		cfg.ID = "cache"
	}
	if cfg.SocketDir == "" {
		cfg.SocketDir = os.TempDir()
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = time.Second
	}
}

func applySourcesDefaults(cfg *SourcesConfig) {
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP.Timeout = httpsource.DefaultTimeout
	}
	if cfg.HTTP.UserAgent == "" {
		cfg.HTTP.UserAgent = httpsource.DefaultUserAgent
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = s3source.DefaultRegion
	}
}

// GetDefaultConfig returns a configuration with all defaults applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
