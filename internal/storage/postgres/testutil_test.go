package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-sweeper/internal/storage/migrations"
	"solana-sweeper/internal/storage/postgres"
)

// startDatabase runs PostgreSQL in a container and applies the embedded
// session schema.
func startDatabase(t *testing.T) *postgres.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("sweeper"),
		tcpostgres.WithUsername("sweeper"),
		tcpostgres.WithPassword("sweeper"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool), "migrate")
	// Applying twice must be harmless.
	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool), "re-migrate")

	return pool
}

func resetTables(t *testing.T, pool *postgres.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `TRUNCATE wallets, monitoring_sessions RESTART IDENTITY`)
	require.NoError(t, err)
}
