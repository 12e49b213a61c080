package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sweeper/internal/domain"
	"solana-sweeper/internal/storage"
)

// SweepStore is an in-memory implementation of storage.SweepStore.
type SweepStore struct {
	mu   sync.RWMutex
	data []*domain.SweepRecord
	ids  map[string]bool
}

// NewSweepStore creates a new in-memory sweep store.
func NewSweepStore() *SweepStore {
	return &SweepStore{ids: make(map[string]bool)}
}

// Compile-time interface check.
var _ storage.SweepStore = (*SweepStore)(nil)

// Insert appends a sweep record. Returns ErrDuplicateKey if ID exists.
func (s *SweepStore) Insert(_ context.Context, r *domain.SweepRecord) error {
	if r == nil || r.ID == "" || r.Owner == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids[r.ID] {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	recCopy := *r
	s.data = append(s.data, &recCopy)
	s.ids[r.ID] = true
	return nil
}

// ListByOwner returns up to limit records of owner, newest first.
func (s *SweepStore) ListByOwner(_ context.Context, owner string, limit int) ([]*domain.SweepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.SweepRecord
	for _, r := range s.data {
		if r.Owner == owner {
			recCopy := *r
			out = append(out, &recCopy)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
