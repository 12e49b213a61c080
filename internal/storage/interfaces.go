package storage

import (
	"context"

	"solana-sweeper/internal/domain"
)

// SessionStore provides access to wallets and monitoring_sessions storage.
// Writes are durable when the call returns.
type SessionStore interface {
	// SaveAccounts replaces the owner's active set: every prior record of the
	// owner is deactivated, then records are stored active in the given order.
	// The owner's session is reopened with the new count. Returns the number saved.
	SaveAccounts(ctx context.Context, owner string, records []domain.CredentialRecord) (int, error)

	// LoadAccounts returns the owner's active records in registration order.
	LoadAccounts(ctx context.Context, owner string) ([]domain.CredentialRecord, error)

	// DeactivateAccounts marks the given public keys of owner inactive.
	DeactivateAccounts(ctx context.Context, owner string, publicKeys []string) error

	// ClearAccounts deletes every record of owner. Returns the number deleted.
	ClearAccounts(ctx context.Context, owner string) (int, error)

	// MarkSessionStopped stamps stopped_at on the owner's open session.
	MarkSessionStopped(ctx context.Context, owner string) error

	// FindLastOpenSession returns the most recently started open session.
	// Returns ErrNotFound if there is none.
	FindLastOpenSession(ctx context.Context) (*domain.Session, error)

	// Stats summarizes the owner's records.
	Stats(ctx context.Context, owner string) (*domain.AccountStats, error)
}

// SweepStore provides access to the sweeps ledger.
type SweepStore interface {
	// Insert appends a sweep record. Returns ErrDuplicateKey if ID exists.
	Insert(ctx context.Context, r *domain.SweepRecord) error

	// ListByOwner returns up to limit records of owner, newest first.
	ListByOwner(ctx context.Context, owner string, limit int) ([]*domain.SweepRecord, error)
}
