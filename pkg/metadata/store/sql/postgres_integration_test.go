//go:build integration

package sql_test

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/dittocache/pkg/metadata"
	sqlstore "github.com/marmos91/dittocache/pkg/metadata/store/sql"
	"github.com/marmos91/dittocache/pkg/metadata/storetest"
	"github.com/marmos91/dittocache/pkg/storage"
)

func TestConformancePostgres(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dittocache"),
		postgres.WithUsername("dittocache"),
		postgres.WithPassword("dittocache"),
		testcontainers.WithWaitStrategyAndDeadline(2*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	base := storage.PostgresConfig{
		Host:     host,
		Port:     portNum,
		Database: "dittocache",
		User:     "dittocache",
		Password: "dittocache",
		SSLMode:  "disable",
	}

	admin, err := storage.Open(ctx, storage.Config{Type: storage.DatabaseTypePostgres, Postgres: base})
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })

	// Each test gets its own database so lock sequences start fresh.
	var counter atomic.Int64
	storetest.RunConformanceSuite(t, func(t *testing.T) metadata.Store {
		name := fmt.Sprintf("conformance_%d", counter.Add(1))
		require.NoError(t, admin.Query(ctx).Exec("CREATE DATABASE "+name).Error)

		cfg := base
		cfg.Database = name
		store, err := sqlstore.Open(ctx, storage.Config{Type: storage.DatabaseTypePostgres, Postgres: cfg})
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
