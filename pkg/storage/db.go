// Package storage is the relational execution layer underneath the SQL
// metadata store. It opens SQLite or PostgreSQL through GORM and exposes a
// transactional Exec primitive.
//
// SQLite runs with exactly one open connection. Every statement, and every
// transaction passed to Exec, is therefore queued behind the previous one,
// which serializes row mutations without any row-level locking in callers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/dittocache/internal/logger"
)

// DB wraps a GORM connection with the configuration it was opened from.
type DB struct {
	db     *gorm.DB
	config Config
}

// Open connects to the configured backend. Connection failures are returned
// as is; retrying is left to the caller.
func Open(ctx context.Context, config Config) (*DB, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if config.SQLite.Path != MemoryPath {
			if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		// WAL lets readers from other processes (the CLI) proceed while the
		// worker writes; busy_timeout absorbs short lock contention.
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	switch config.Type {
	case DatabaseTypeSQLite:
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	case DatabaseTypePostgres:
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	logger.Debug("Database opened", logger.KeyStore, string(config.Type))

	return &DB{db: db, config: config}, nil
}

// Migrate creates or updates the tables for the given models.
func (d *DB) Migrate(models ...any) error {
	if err := d.db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to run database migration: %w", err)
	}
	return nil
}

// Exec runs fn inside a single transaction. The transaction commits when fn
// returns nil and rolls back when it returns an error or panics.
func (d *DB) Exec(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.db.WithContext(ctx).Transaction(fn)
}

// Query returns a session bound to ctx for single-statement reads.
func (d *DB) Query(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx)
}

// Type returns the backend this DB was opened with.
func (d *DB) Type() DatabaseType {
	return d.config.Type
}

// Healthcheck pings the database.
func (d *DB) Healthcheck(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

// IsUniqueViolation reports whether err is a unique constraint violation on
// either backend.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

// IsNotFound reports whether err is GORM's record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
