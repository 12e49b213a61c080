package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-sweeper/internal/domain"
	"solana-sweeper/internal/storage"
)

// SessionStore is an in-memory implementation of storage.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	records  map[string]*domain.CredentialRecord // keyed by secret
	sessions map[string]*domain.Session          // keyed by owner
	now      func() time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		records:  make(map[string]*domain.CredentialRecord),
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// SaveAccounts replaces the owner's active set and reopens the session.
func (s *SessionStore) SaveAccounts(_ context.Context, owner string, records []domain.CredentialRecord) (int, error) {
	if owner == "" {
		return 0, storage.ErrInvalidInput
	}
	for _, r := range records {
		if r.Secret == "" || r.PublicKey == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, r := range s.records {
		if r.Owner == owner {
			r.Active = false
		}
	}

	for i, r := range records {
		rec, exists := s.records[r.Secret]
		if !exists {
			rec = &domain.CredentialRecord{Secret: r.Secret, CreatedAt: now}
			s.records[r.Secret] = rec
		}
		rec.PublicKey = r.PublicKey
		rec.Owner = owner
		rec.Position = i
		rec.Active = true
	}

	s.sessions[owner] = &domain.Session{
		Owner:        owner,
		StartedAt:    now,
		AccountCount: len(records),
	}
	return len(records), nil
}

// LoadAccounts returns the owner's active records in registration order.
func (s *SessionStore) LoadAccounts(_ context.Context, owner string) ([]domain.CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CredentialRecord
	for _, r := range s.records {
		if r.Owner == owner && r.Active {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out, nil
}

// DeactivateAccounts marks the given public keys of owner inactive.
func (s *SessionStore) DeactivateAccounts(_ context.Context, owner string, publicKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]bool, len(publicKeys))
	for _, pk := range publicKeys {
		keys[pk] = true
	}
	for _, r := range s.records {
		if r.Owner == owner && keys[r.PublicKey] {
			r.Active = false
		}
	}
	return nil
}

// ClearAccounts deletes every record of owner.
func (s *SessionStore) ClearAccounts(_ context.Context, owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for secret, r := range s.records {
		if r.Owner == owner {
			delete(s.records, secret)
			n++
		}
	}
	return n, nil
}

// MarkSessionStopped stamps stopped_at on the owner's open session.
func (s *SessionStore) MarkSessionStopped(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[owner]
	if !ok || sess.StoppedAt != nil {
		return nil
	}
	now := s.now()
	sess.StoppedAt = &now
	return nil
}

// FindLastOpenSession returns the most recently started open session.
func (s *SessionStore) FindLastOpenSession(_ context.Context) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *domain.Session
	for _, sess := range s.sessions {
		if !sess.Open() {
			continue
		}
		if last == nil || sess.StartedAt.After(last.StartedAt) ||
			(sess.StartedAt.Equal(last.StartedAt) && sess.Owner > last.Owner) {
			last = sess
		}
	}
	if last == nil {
		return nil, storage.ErrNotFound
	}

	sessCopy := *last
	return &sessCopy, nil
}

// Stats summarizes the owner's records.
func (s *SessionStore) Stats(_ context.Context, owner string) (*domain.AccountStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.AccountStats{}
	for _, r := range s.records {
		if r.Owner != owner {
			continue
		}
		stats.Total++
		if r.Active {
			stats.Active++
		}
		if stats.FirstAddedAt == nil || r.CreatedAt.Before(*stats.FirstAddedAt) {
			t := r.CreatedAt
			stats.FirstAddedAt = &t
		}
	}
	return stats, nil
}
