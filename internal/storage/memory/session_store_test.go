package memory

import (
	"testing"

	"solana-sweeper/internal/storage"
	"solana-sweeper/internal/storage/storagetest"
)

func TestSessionStore(t *testing.T) {
	storagetest.RunSessionStoreTests(t, func(t *testing.T) storage.SessionStore {
		return NewSessionStore()
	})
}

func TestSweepStore(t *testing.T) {
	storagetest.RunSweepStoreTests(t, func(t *testing.T) storage.SweepStore {
		return NewSweepStore()
	})
}
