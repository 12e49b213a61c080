// Package storagetest holds behavior tests shared by every store backend.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sweeper/internal/domain"
	"solana-sweeper/internal/storage"
)

// Records builds n distinct credential records tagged with prefix.
func Records(prefix string, n int) []domain.CredentialRecord {
	out := make([]domain.CredentialRecord, n)
	for i := range out {
		out[i] = domain.CredentialRecord{
			Secret:    fmt.Sprintf("%s-secret-%d", prefix, i),
			PublicKey: fmt.Sprintf("%s-pub-%d", prefix, i),
		}
	}
	return out
}

func publicKeys(recs []domain.CredentialRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.PublicKey
	}
	return out
}

// RunSessionStoreTests exercises a SessionStore. newStore must return an
// empty store for every call.
func RunSessionStoreTests(t *testing.T, newStore func(t *testing.T) storage.SessionStore) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		recs := Records("a", 3)

		n, err := s.SaveAccounts(ctx, "owner-1", recs)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		got, err := s.LoadAccounts(ctx, "owner-1")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, publicKeys(recs), publicKeys(got))
		for i, r := range got {
			assert.Equal(t, recs[i].Secret, r.Secret)
			assert.Equal(t, "owner-1", r.Owner)
			assert.True(t, r.Active)
		}

		other, err := s.LoadAccounts(ctx, "owner-2")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("SaveReplacesActiveSet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := Records("b", 2)
		second := append(Records("c", 1), first[1])

		_, err := s.SaveAccounts(ctx, "owner-1", first)
		require.NoError(t, err)
		_, err = s.SaveAccounts(ctx, "owner-1", second)
		require.NoError(t, err)

		got, err := s.LoadAccounts(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, publicKeys(second), publicKeys(got))

		stats, err := s.Stats(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 2, stats.Active)
		assert.NotNil(t, stats.FirstAddedAt)
	})

	t.Run("SaveRejectsEmptyOwner", func(t *testing.T) {
		s := newStore(t)

		_, err := s.SaveAccounts(context.Background(), "", Records("x", 1))
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	})

	t.Run("Deactivate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		recs := Records("d", 3)

		_, err := s.SaveAccounts(ctx, "owner-1", recs)
		require.NoError(t, err)
		require.NoError(t, s.DeactivateAccounts(ctx, "owner-1", []string{recs[1].PublicKey, "unknown"}))

		got, err := s.LoadAccounts(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, []string{recs[0].PublicKey, recs[2].PublicKey}, publicKeys(got))

		stats, err := s.Stats(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 2, stats.Active)
	})

	t.Run("Clear", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.SaveAccounts(ctx, "owner-1", Records("e", 2))
		require.NoError(t, err)
		_, err = s.SaveAccounts(ctx, "owner-2", Records("f", 1))
		require.NoError(t, err)

		n, err := s.ClearAccounts(ctx, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		stats, err := s.Stats(ctx, "owner-1")
		require.NoError(t, err)
		assert.Zero(t, stats.Total)
		assert.Nil(t, stats.FirstAddedAt)

		got, err := s.LoadAccounts(ctx, "owner-2")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("SessionLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.FindLastOpenSession(ctx)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = s.SaveAccounts(ctx, "owner-1", Records("g", 2))
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
		_, err = s.SaveAccounts(ctx, "owner-2", Records("h", 1))
		require.NoError(t, err)

		last, err := s.FindLastOpenSession(ctx)
		require.NoError(t, err)
		assert.Equal(t, "owner-2", last.Owner)
		assert.Equal(t, 1, last.AccountCount)
		assert.True(t, last.Open())

		require.NoError(t, s.MarkSessionStopped(ctx, "owner-2"))

		last, err = s.FindLastOpenSession(ctx)
		require.NoError(t, err)
		assert.Equal(t, "owner-1", last.Owner)
		assert.Equal(t, 2, last.AccountCount)

		require.NoError(t, s.MarkSessionStopped(ctx, "owner-1"))
		_, err = s.FindLastOpenSession(ctx)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		// Stopping twice is harmless; saving again reopens
		require.NoError(t, s.MarkSessionStopped(ctx, "owner-1"))
		time.Sleep(20 * time.Millisecond)
		_, err = s.SaveAccounts(ctx, "owner-1", Records("g", 1))
		require.NoError(t, err)

		last, err = s.FindLastOpenSession(ctx)
		require.NoError(t, err)
		assert.Equal(t, "owner-1", last.Owner)
		assert.Equal(t, 1, last.AccountCount)
	})
}

// RunSweepStoreTests exercises a SweepStore. newStore must return an empty
// store for every call.
func RunSweepStoreTests(t *testing.T, newStore func(t *testing.T) storage.SweepStore) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	record := func(owner string, offset time.Duration, status domain.SweepStatus) *domain.SweepRecord {
		return &domain.SweepRecord{
			ID:          uuid.NewString(),
			Owner:       owner,
			Account:     "source-pub",
			Destination: "dest-pub",
			Observed:    1_000_000,
			Amount:      995_000,
			Signature:   "sig-" + offset.String(),
			Status:      status,
			LatencyMs:   1200,
			CreatedAt:   base.Add(offset),
		}
	}

	t.Run("InsertAndList", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		older := record("owner-1", 0, domain.SweepSucceeded)
		newer := record("owner-1", time.Minute, domain.SweepFailed)
		newer.Reason = "confirmation_timeout"
		require.NoError(t, s.Insert(ctx, older))
		require.NoError(t, s.Insert(ctx, newer))
		require.NoError(t, s.Insert(ctx, record("owner-2", 0, domain.SweepSucceeded)))

		got, err := s.ListByOwner(ctx, "owner-1", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)

		assert.Equal(t, newer.ID, got[0].ID)
		assert.Equal(t, domain.SweepFailed, got[0].Status)
		assert.Equal(t, "confirmation_timeout", got[0].Reason)
		assert.Equal(t, older.ID, got[1].ID)
		assert.Equal(t, uint64(995_000), got[1].Amount)
		assert.Equal(t, uint64(1_000_000), got[1].Observed)
		assert.Equal(t, int64(1200), got[1].LatencyMs)
		assert.True(t, older.CreatedAt.Equal(got[1].CreatedAt))
	})

	t.Run("Limit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			require.NoError(t, s.Insert(ctx, record("owner-1", time.Duration(i)*time.Second, domain.SweepSucceeded)))
		}

		got, err := s.ListByOwner(ctx, "owner-1", 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.True(t, got[0].CreatedAt.Equal(base.Add(4*time.Second)))
	})

	t.Run("InvalidInput", func(t *testing.T) {
		s := newStore(t)

		err := s.Insert(context.Background(), &domain.SweepRecord{})
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	})
}
