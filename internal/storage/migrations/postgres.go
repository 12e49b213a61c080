package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-sweeper/internal/storage/postgres"
)

// postgresLockID serializes schema setup between processes sharing a database.
const postgresLockID int64 = 0x5357_4545_5045_52

// RunPostgresMigrations applies the embedded wallet and session schema in a
// single transaction. Every file is idempotent, so this runs on each start.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	return pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, postgresLockID); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		for _, m := range files {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.name, err)
			}
		}
		return nil
	})
}
