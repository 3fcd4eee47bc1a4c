package commands

import (
	"context"
	"fmt"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/config"
	"github.com/marmos91/dittocache/pkg/downloader"
	"github.com/marmos91/dittocache/pkg/downloader/source/file"
	httpsource "github.com/marmos91/dittocache/pkg/downloader/source/http"
	s3source "github.com/marmos91/dittocache/pkg/downloader/source/s3"
	"github.com/marmos91/dittocache/pkg/metadata"
	"github.com/marmos91/dittocache/pkg/metadata/store/badger"
	"github.com/marmos91/dittocache/pkg/metadata/store/sql"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// openStore opens the metadata backend selected by cfg.Metadata.Backend.
func openStore(ctx context.Context, cfg *config.Config) (metadata.Store, error) {
	switch cfg.Metadata.Backend {
	case "badger":
		store, err := badger.Open(ctx, cfg.Metadata.Badger)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger metadata store: %w", err)
		}
		logger.Info("Metadata store opened", logger.KeyStore, "badger", logger.KeyPath, cfg.Metadata.Badger.Path)
		return store, nil

	case "sql", "":
		store, err := sql.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open sql metadata store: %w", err)
		}
		logger.Info("Metadata store opened", logger.KeyStore, string(cfg.Database.Type))
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported metadata backend: %s", cfg.Metadata.Backend)
	}
}

// buildSources registers every source kind the configuration allows. The
// returned closer releases the shared HTTP client.
func buildSources(ctx context.Context, cfg *config.Config) (*downloader.Registry, func() error) {
	registry := downloader.NewRegistry()

	file.Register(registry)

	httpClient := httpsource.NewClient(cfg.Sources.HTTP)
	httpClient.Register(registry)

	// Missing AWS credentials only disable the s3 kind.
	if s3Client, err := s3source.NewFromConfig(ctx, cfg.Sources.S3); err != nil {
		logger.Warn("S3 sources disabled", logger.Err(err))
	} else {
		s3Client.Register(registry)
	}

	logger.Info("Source kinds registered", "kinds", registry.Kinds())

	return registry, httpClient.Close
}
