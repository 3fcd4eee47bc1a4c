package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittocache/internal/bytesize"
	httpsource "github.com/marmos91/dittocache/pkg/downloader/source/http"
	s3source "github.com/marmos91/dittocache/pkg/downloader/source/s3"
	"github.com/marmos91/dittocache/pkg/metadata/store/badger"
	"github.com/marmos91/dittocache/pkg/storage"
)

// EnvPrefix prefixes every environment override, e.g.
// DITTOCACHE_CACHE_MAX_SIZE=4GiB.
const EnvPrefix = "DITTOCACHE"

// Config represents the DittoCache worker configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOCACHE_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Cache bounds the on-disk audio cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Transcoder configures the PCM transcode step of every transfer
	Transcoder TranscoderConfig `mapstructure:"transcoder" yaml:"transcoder"`

	// Database configures the relational backend of the sql metadata store
	Database storage.Config `mapstructure:"database" yaml:"database"`

	// Metadata selects the metadata store backend
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// Worker configures the RPC endpoint of the worker process
	Worker WorkerConfig `mapstructure:"worker" yaml:"worker"`

	// Sources configures the remote source kinds
	Sources SourcesConfig `mapstructure:"sources" yaml:"sources"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes lists the profiles to collect
	// Default: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space, goroutines
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// CacheConfig bounds the on-disk cache.
type CacheConfig struct {
	// Root is the directory holding one subdirectory per cached content id
	// Default: $XDG_DATA_HOME/dittocache/cache
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// MaxSize is the upper bound of the cached bytes
	// Supports human-readable formats: "2GiB", "500MB"
	// Default: 2GiB
	MaxSize bytesize.ByteSize `mapstructure:"max_size" validate:"gt=0" yaml:"max_size"`

	// EvictInterval is the period of the background eviction sweep.
	// Zero disables the sweep.
	// Default: 1m
	EvictInterval time.Duration `mapstructure:"evict_interval" validate:"gte=0" yaml:"evict_interval"`
}

// TranscoderConfig configures the ffmpeg transcode step.
type TranscoderConfig struct {
	// FFmpegPath is the ffmpeg binary, resolved through PATH when relative
	// Default: "ffmpeg"
	FFmpegPath string `mapstructure:"ffmpeg_path" validate:"required" yaml:"ffmpeg_path"`

	// InputArgs are extra ffmpeg arguments placed before the input
	InputArgs []string `mapstructure:"input_args" yaml:"input_args,omitempty"`
}

// MetadataConfig selects the metadata store backend.
type MetadataConfig struct {
	// Backend is "sql" (uses the database section) or "badger"
	// Default: "sql"
	Backend string `mapstructure:"backend" validate:"required,oneof=sql badger" yaml:"backend"`

	// Badger configures the embedded BadgerDB backend
	Badger badger.Config `mapstructure:"badger" yaml:"badger"`
}

// WorkerConfig configures the worker RPC endpoint. The socket lives at
// <socket_dir>/<namespace>.<id>.sock.
type WorkerConfig struct {
	// Namespace groups the workers of one deployment
	// Default: "dittocache"
	Namespace string `mapstructure:"namespace" validate:"required,excludesall=/\\" yaml:"namespace"`

	// ID names this worker inside the namespace
	// Default: "cache"
	ID string `mapstructure:"id" validate:"required,excludesall=/\\" yaml:"id"`

	// SocketDir is the directory of the unix socket
	// Default: os.TempDir()
	SocketDir string `mapstructure:"socket_dir" validate:"required" yaml:"socket_dir"`

	// RetryInterval is the client reconnect interval
	// Default: 1s
	RetryInterval time.Duration `mapstructure:"retry_interval" validate:"gt=0" yaml:"retry_interval"`

	// MaxRetryInterval switches reconnects to exponential backoff capped at
	// this value. Zero keeps a constant RetryInterval.
	MaxRetryInterval time.Duration `mapstructure:"max_retry_interval" validate:"gte=0" yaml:"max_retry_interval"`

	// GiveUpAfter bounds the total reconnect time. Zero retries forever.
	GiveUpAfter time.Duration `mapstructure:"give_up_after" validate:"gte=0" yaml:"give_up_after"`
}

// SocketPath returns the unix socket path of the worker.
func (w *WorkerConfig) SocketPath() string {
	return filepath.Join(w.SocketDir, w.Namespace+"."+w.ID+".sock")
}

// SourcesConfig configures the remote source kinds.
type SourcesConfig struct {
	HTTP httpsource.Config `mapstructure:"http" yaml:"http"`
	S3   s3source.Config   `mapstructure:"s3" yaml:"s3"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath searches the default location. A missing file is not
// an error: defaults and environment overrides still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal only sees keys viper knows about; registering the defaults
	// makes environment overrides visible even without a config file.
	if err := bindDefaults(v); err != nil {
		return nil, err
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

// MustLoad loads configuration with helpful error messages when the file
// does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittocache config init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittocache <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dittocache config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry database and S3 credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
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

// bindDefaults registers every key of the default configuration with v so
// that AutomaticEnv can override keys absent from the file.
func bindDefaults(v *viper.Viper) error {
	var defaults map[string]any
	if err := mapstructure.Decode(GetDefaultConfig(), &defaults); err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	for key, value := range flatten("", defaults) {
		v.SetDefault(key, value)
	}
	return nil
}

func flatten(prefix string, in map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize, so
// config files can use sizes like "2GiB", "500MB" or plain byte counts.
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
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
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

// getConfigDir returns $XDG_CONFIG_HOME/dittocache, ~/.config/dittocache,
// or "." when no home directory exists.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittocache")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittocache")
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

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
