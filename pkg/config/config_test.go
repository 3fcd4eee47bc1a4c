package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittocache/internal/bytesize"
	"github.com/marmos91/dittocache/pkg/storage"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_MinimalConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, `
logging:
  level: "debug"

cache:
  root: "`+yamlSafePath(tmpDir)+`/cache"
  max_size: 100Mi
  evict_interval: 10s

database:
  type: sqlite
  sqlite:
    path: "`+yamlSafePath(tmpDir)+`/metadata.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Cache.MaxSize != 100*bytesize.MiB {
		t.Errorf("Expected max_size 100Mi, got %d", cfg.Cache.MaxSize)
	}
	if cfg.Cache.EvictInterval != 10*time.Second {
		t.Errorf("Expected evict_interval 10s, got %v", cfg.Cache.EvictInterval)
	}
	if cfg.Database.Type != storage.DatabaseTypeSQLite {
		t.Errorf("Expected sqlite database, got %q", cfg.Database.Type)
	}
	if cfg.Metadata.Backend != "sql" {
		t.Errorf("Expected default metadata backend 'sql', got %q", cfg.Metadata.Backend)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg.Cache.MaxSize != 2*bytesize.GiB {
		t.Errorf("Expected default max_size 2GiB, got %d", cfg.Cache.MaxSize)
	}
	if cfg.Worker.Namespace != "dittocache" || cfg.Worker.ID != "cache" {
		t.Errorf("Unexpected worker identity %q/%q", cfg.Worker.Namespace, cfg.Worker.ID)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	configPath := writeConfig(t, `
metadata:
  backend: rocksdb
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown metadata backend")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DITTOCACHE_LOGGING_LEVEL", "ERROR")
	t.Setenv("DITTOCACHE_CACHE_MAX_SIZE", "4GiB")
	t.Setenv("DITTOCACHE_WORKER_RETRY_INTERVAL", "250ms")

	configPath := writeConfig(t, `
logging:
  level: "INFO"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Cache.MaxSize != 4*bytesize.GiB {
		t.Errorf("Expected max_size 4GiB from env var, got %d", cfg.Cache.MaxSize)
	}
	if cfg.Worker.RetryInterval != 250*time.Millisecond {
		t.Errorf("Expected retry_interval 250ms from env var, got %v", cfg.Worker.RetryInterval)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cache.MaxSize = 512 * bytesize.MiB
	cfg.Worker.ID = "eu-1"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %o", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Cache.MaxSize != 512*bytesize.MiB {
		t.Errorf("Expected max_size 512MiB, got %d", loaded.Cache.MaxSize)
	}
	if loaded.Worker.ID != "eu-1" {
		t.Errorf("Expected worker id 'eu-1', got %q", loaded.Worker.ID)
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	if _, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	if dir := GetConfigDir(); dir != filepath.Join("/xdg", "dittocache") {
		t.Errorf("Expected /xdg/dittocache, got %q", dir)
	}
	if path := GetDefaultConfigPath(); filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestWorkerSocketPath(t *testing.T) {
	w := WorkerConfig{Namespace: "bot", ID: "guild-7", SocketDir: "/run/dittocache"}
	if got := w.SocketPath(); got != "/run/dittocache/bot.guild-7.sock" {
		t.Errorf("Unexpected socket path %q", got)
	}
}
