package config

import (
	"testing"
	"time"

	"github.com/marmos91/dittocache/internal/bytesize"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Cache(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Cache.Root == "" {
		t.Error("Expected default cache root")
	}
	if cfg.Cache.MaxSize != 2*bytesize.GiB {
		t.Errorf("Expected default max size 2GiB, got %d", cfg.Cache.MaxSize)
	}
	if cfg.Cache.EvictInterval != time.Minute {
		t.Errorf("Expected default evict interval 1m, got %v", cfg.Cache.EvictInterval)
	}
	if cfg.Transcoder.FFmpegPath != "ffmpeg" {
		t.Errorf("Expected default ffmpeg path 'ffmpeg', got %q", cfg.Transcoder.FFmpegPath)
	}
}

func TestApplyDefaults_Worker(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Worker.RetryInterval != time.Second {
		t.Errorf("Expected default retry interval 1s, got %v", cfg.Worker.RetryInterval)
	}
	if cfg.Worker.MaxRetryInterval != 0 || cfg.Worker.GiveUpAfter != 0 {
		t.Error("Expected constant, unbounded retry by default")
	}
}

func TestApplyDefaults_MetricsPortOnlyWhenEnabled(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 0 {
		t.Errorf("Expected no metrics port when disabled, got %d", cfg.Metrics.Port)
	}

	cfg = &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_BadgerPath(t *testing.T) {
	cfg := &Config{Metadata: MetadataConfig{Backend: "badger"}}
	ApplyDefaults(cfg)

	if cfg.Metadata.Badger.Path == "" {
		t.Error("Expected default badger path for the badger backend")
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Cache:           CacheConfig{Root: "/srv/cache", MaxSize: 10 * bytesize.MiB},
		ShutdownTimeout: 5 * time.Second,
	}
	ApplyDefaults(cfg)

	if cfg.Cache.Root != "/srv/cache" {
		t.Errorf("Expected explicit root preserved, got %q", cfg.Cache.Root)
	}
	if cfg.Cache.MaxSize != 10*bytesize.MiB {
		t.Errorf("Expected explicit max size preserved, got %d", cfg.Cache.MaxSize)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected explicit shutdown timeout preserved, got %v", cfg.ShutdownTimeout)
	}
}
