package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-sweeper/internal/domain"
	"solana-sweeper/internal/storage"
)

const (
	upsertWallet = `
		INSERT INTO wallets (private_key, public_key, chat_id, position, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (private_key) DO UPDATE SET
			public_key = EXCLUDED.public_key,
			chat_id = EXCLUDED.chat_id,
			position = EXCLUDED.position,
			is_active = TRUE
	`

	upsertSession = `
		INSERT INTO monitoring_sessions (chat_id, started_at, stopped_at, wallet_count)
		VALUES ($1, $2, NULL, $3)
		ON CONFLICT (chat_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			stopped_at = NULL,
			wallet_count = EXCLUDED.wallet_count
	`
)

// SessionStore implements storage.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *Pool
	now  func() time.Time
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool *Pool) *SessionStore {
	return &SessionStore{pool: pool, now: time.Now}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// SaveAccounts replaces the owner's active set and reopens the session atomically.
func (s *SessionStore) SaveAccounts(ctx context.Context, owner string, records []domain.CredentialRecord) (n int, err error) {
	if owner == "" {
		return 0, storage.ErrInvalidInput
	}
	for _, r := range records {
		if r.Secret == "" || r.PublicKey == "" {
			return 0, storage.ErrInvalidInput
		}
	}
	defer observe("save_accounts")(&err)

	err = s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE wallets SET is_active = FALSE WHERE chat_id = $1`, owner); err != nil {
			return fmt.Errorf("deactivate wallets: %w", err)
		}

		now := s.now()
		for i, r := range records {
			if _, err := tx.Exec(ctx, upsertWallet, r.Secret, r.PublicKey, owner, i, now); err != nil {
				return fmt.Errorf("upsert wallet: %w", mapError(err))
			}
		}

		if _, err := tx.Exec(ctx, upsertSession, owner, now, len(records)); err != nil {
			return fmt.Errorf("upsert session: %w", mapError(err))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(records), nil
}

// LoadAccounts returns the owner's active records in registration order.
func (s *SessionStore) LoadAccounts(ctx context.Context, owner string) (_ []domain.CredentialRecord, err error) {
	defer observe("load_accounts")(&err)

	query := `
		SELECT private_key, public_key, chat_id, position, is_active, created_at
		FROM wallets
		WHERE chat_id = $1 AND is_active = TRUE
		ORDER BY position ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeactivateAccounts marks the given public keys of owner inactive.
func (s *SessionStore) DeactivateAccounts(ctx context.Context, owner string, publicKeys []string) (err error) {
	if len(publicKeys) == 0 {
		return nil
	}
	defer observe("deactivate_accounts")(&err)

	_, err = s.pool.Exec(ctx,
		`UPDATE wallets SET is_active = FALSE WHERE chat_id = $1 AND public_key = ANY($2)`,
		owner, publicKeys,
	)
	if err != nil {
		return fmt.Errorf("deactivate wallets: %w", err)
	}
	return nil
}

// ClearAccounts deletes every record of owner.
func (s *SessionStore) ClearAccounts(ctx context.Context, owner string) (_ int, err error) {
	defer observe("clear_accounts")(&err)

	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE chat_id = $1`, owner)
	if err != nil {
		return 0, fmt.Errorf("delete wallets: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkSessionStopped stamps stopped_at on the owner's open session.
func (s *SessionStore) MarkSessionStopped(ctx context.Context, owner string) (err error) {
	defer observe("mark_session_stopped")(&err)

	_, err = s.pool.Exec(ctx,
		`UPDATE monitoring_sessions SET stopped_at = $2 WHERE chat_id = $1 AND stopped_at IS NULL`,
		owner, s.now(),
	)
	if err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	return nil
}

// FindLastOpenSession returns the most recently started open session.
func (s *SessionStore) FindLastOpenSession(ctx context.Context) (_ *domain.Session, err error) {
	defer observe("find_last_open_session")(&err)

	query := `
		SELECT chat_id, started_at, stopped_at, wallet_count
		FROM monitoring_sessions
		WHERE stopped_at IS NULL
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`

	var sess domain.Session
	err = s.pool.QueryRow(ctx, query).Scan(&sess.Owner, &sess.StartedAt, &sess.StoppedAt, &sess.AccountCount)
	if err != nil {
		if err = mapError(err); errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return &sess, nil
}

// Stats summarizes the owner's records.
func (s *SessionStore) Stats(ctx context.Context, owner string) (_ *domain.AccountStats, err error) {
	defer observe("stats")(&err)

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			MIN(created_at)
		FROM wallets
		WHERE chat_id = $1
	`

	var stats domain.AccountStats
	err = s.pool.QueryRow(ctx, query, owner).Scan(&stats.Total, &stats.Active, &stats.FirstAddedAt)
	if err != nil {
		return nil, fmt.Errorf("wallet stats: %w", err)
	}
	return &stats, nil
}

// scanRecords scans multiple rows into a slice of CredentialRecord.
func scanRecords(rows pgx.Rows) ([]domain.CredentialRecord, error) {
	var out []domain.CredentialRecord

	for rows.Next() {
		var r domain.CredentialRecord
		if err := rows.Scan(&r.Secret, &r.PublicKey, &r.Owner, &r.Position, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}

	return out, nil
}
