package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sweeper/internal/storage"
	"solana-sweeper/internal/storage/storagetest"
)

func setupTestStore(t *testing.T) *SessionStore {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "data", "wallets.db"))
	require.NoError(t, err)

	store := NewSessionStore(db)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSessionStore(t *testing.T) {
	storagetest.RunSessionStoreTests(t, func(t *testing.T) storage.SessionStore {
		return setupTestStore(t)
	})
}

func TestSessionStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.db")
	ctx := context.Background()

	db, err := Open(path)
	require.NoError(t, err)
	store := NewSessionStore(db)

	_, err = store.SaveAccounts(ctx, "owner-1", storagetest.Records("r", 2))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	db, err = Open(path)
	require.NoError(t, err)
	reopened := NewSessionStore(db)
	defer reopened.Close()

	sess, err := reopened.FindLastOpenSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", sess.Owner)

	recs, err := reopened.LoadAccounts(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSessionStore_UpsertKeepsCreatedAt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	recs := storagetest.Records("u", 1)

	_, err := store.SaveAccounts(ctx, "owner-1", recs)
	require.NoError(t, err)
	first, err := store.LoadAccounts(ctx, "owner-1")
	require.NoError(t, err)

	_, err = store.SaveAccounts(ctx, "owner-1", recs)
	require.NoError(t, err)
	second, err := store.LoadAccounts(ctx, "owner-1")
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.True(t, first[0].CreatedAt.Equal(second[0].CreatedAt))
}
