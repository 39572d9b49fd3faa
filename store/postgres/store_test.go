package postgres_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/store/postgres"
	"github.com/xraph/vesting/store/storetest"
)

// setupContainer starts one PostgreSQL container for the whole test and
// returns its connection string.
func setupContainer(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("vesting"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")
	return dsn
}

var schemaSeq atomic.Int64

// openStore opens a store in a fresh schema so subtests do not share rows.
func openStore(t *testing.T, dsn string) store.Store {
	t.Helper()
	ctx := context.Background()

	schemaName := fmt.Sprintf("vesting_test_%d", schemaSeq.Add(1))

	admin := pgdriver.New()
	require.NoError(t, admin.Open(ctx, dsn))
	_, err := admin.Exec(ctx, "CREATE SCHEMA "+schemaName)
	require.NoError(t, err)
	require.NoError(t, admin.Close())

	pgdb := pgdriver.New()
	require.NoError(t, pgdb.Open(ctx, dsn+"&search_path="+schemaName))
	db, err := grove.Open(pgdb)
	require.NoError(t, err)

	s := postgres.New(db)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	dsn := setupContainer(t)
	storetest.Run(t, func(t *testing.T) store.Store { return openStore(t, dsn) })
}
