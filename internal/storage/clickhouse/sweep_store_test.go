package clickhouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sweeper/internal/domain"
	"solana-sweeper/internal/storage"
	chstore "solana-sweeper/internal/storage/clickhouse"
	"solana-sweeper/internal/storage/storagetest"
)

func TestSweepStore(t *testing.T) {
	conn := startLedger(t)

	storagetest.RunSweepStoreTests(t, func(t *testing.T) storage.SweepStore {
		truncate(t, conn)
		return chstore.NewSweepStore(conn)
	})
}

func TestSweepStore_DuplicateID(t *testing.T) {
	conn := startLedger(t)

	store := chstore.NewSweepStore(conn)
	ctx := context.Background()

	rec := &domain.SweepRecord{
		ID:        uuid.NewString(),
		Owner:     "owner-1",
		Account:   "source-pub",
		Status:    domain.SweepFailed,
		Reason:    "amount_too_small",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.Insert(ctx, rec))
	assert.ErrorIs(t, store.Insert(ctx, rec), storage.ErrDuplicateKey)
}
