package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type counter struct {
	Name  string `gorm:"primaryKey"`
	Value int
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: MemoryPath},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(&counter{}))
	return db
}

func TestConfigDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")

	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, DatabaseTypeSQLite, cfg.Type)
	assert.Equal(t, "/data/dittocache/metadata.db", cfg.SQLite.Path)
	assert.NoError(t, cfg.Validate())

	pg := Config{Type: DatabaseTypePostgres}
	pg.ApplyDefaults()
	assert.Equal(t, 5432, pg.Postgres.Port)
	assert.Equal(t, "disable", pg.Postgres.SSLMode)
	assert.ErrorContains(t, pg.Validate(), "host")

	pg.Postgres.Host, pg.Postgres.Database, pg.Postgres.User = "db", "cache", "ditto"
	assert.NoError(t, pg.Validate())
	assert.Equal(t, "host=db port=5432 user=ditto password= dbname=cache sslmode=disable", pg.Postgres.DSN())

	bad := Config{Type: "mysql"}
	assert.Error(t, bad.Validate())
}

func TestExecCommitsAndRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(ctx, func(tx *gorm.DB) error {
		return tx.Create(&counter{Name: "plays", Value: 1}).Error
	}))

	boom := errors.New("boom")
	err := db.Exec(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&counter{}).Where("name = ?", "plays").Update("value", 99).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := GetByField[counter](db.Query(ctx), ctx, "name", "plays", errors.New("missing"))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Value)
}

func TestHelpers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	missing := errors.New("missing")

	_, err := GetByField[counter](db.Query(ctx), ctx, "name", "nope", missing)
	assert.ErrorIs(t, err, missing)

	err = UpdateByField[counter](db.Query(ctx), ctx, "name", "nope", map[string]any{"value": 2})
	assert.ErrorIs(t, err, ErrNoRows)

	require.NoError(t, db.Query(ctx).Create(&counter{Name: "a"}).Error)
	require.NoError(t, UpdateByField[counter](db.Query(ctx), ctx, "name", "a", map[string]any{"value": 0}))

	err = db.Query(ctx).Create(&counter{Name: "a"}).Error
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(nil))
}

func TestSerializedTransactions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Query(ctx).Create(&counter{Name: "n"}).Error)

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			err := db.Exec(ctx, func(tx *gorm.DB) error {
				var c counter
				if err := tx.Where("name = ?", "n").First(&c).Error; err != nil {
					return err
				}
				return tx.Model(&c).Update("value", c.Value+1).Error
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := GetByField[counter](db.Query(ctx), ctx, "name", "n", errors.New("missing"))
	require.NoError(t, err)
	assert.Equal(t, workers, got.Value)
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "metadata.db")
	db, err := Open(context.Background(), Config{SQLite: SQLiteConfig{Path: path}})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DatabaseTypeSQLite, db.Type())
	assert.NoError(t, db.Healthcheck(context.Background()))
	assert.FileExists(t, path)
}
