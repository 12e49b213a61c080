package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"solana-sweeper/internal/domain"
	"solana-sweeper/internal/observability"
	"solana-sweeper/internal/storage"
)

// SessionStore implements storage.SessionStore using SQLite.
type SessionStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db, now: time.Now}
}

// Compile-time interface check.
var _ storage.SessionStore = (*SessionStore)(nil)

// Close closes the underlying database.
func (s *SessionStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// observe records query duration; call as defer observe(op)(&err).
func observe(op string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		observability.RecordDBQuery("sqlite", op, time.Since(start).Seconds(), *errp)
	}
}

// SaveAccounts replaces the owner's active set and reopens the session.
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

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Wallet{}).
			Where("chat_id = ?", owner).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("deactivate wallets: %w", err)
		}

		if len(records) > 0 {
			rows := make([]Wallet, len(records))
			for i, r := range records {
				rows[i] = Wallet{
					PrivateKey: r.Secret,
					PublicKey:  r.PublicKey,
					ChatID:     owner,
					Position:   i,
					CreatedAt:  now,
					IsActive:   true,
				}
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "private_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"public_key", "chat_id", "position", "is_active"}),
			}).Create(&rows).Error
			if err != nil {
				return fmt.Errorf("upsert wallets: %w", err)
			}
		}

		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "chat_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"started_at":   now,
				"stopped_at":   nil,
				"wallet_count": len(records),
			}),
		}).Create(&MonitoringSession{
			ChatID:      owner,
			StartedAt:   now,
			WalletCount: len(records),
		}).Error
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// LoadAccounts returns the owner's active records in registration order.
func (s *SessionStore) LoadAccounts(ctx context.Context, owner string) (out []domain.CredentialRecord, err error) {
	defer observe("load_accounts")(&err)

	var rows []Wallet
	err = s.db.WithContext(ctx).
		Where("chat_id = ? AND is_active = ?", owner, true).
		Order("position ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}

	out = make([]domain.CredentialRecord, len(rows))
	for i, w := range rows {
		out[i] = toRecord(w)
	}
	return out, nil
}

// DeactivateAccounts marks the given public keys of owner inactive.
func (s *SessionStore) DeactivateAccounts(ctx context.Context, owner string, publicKeys []string) (err error) {
	if len(publicKeys) == 0 {
		return nil
	}
	defer observe("deactivate_accounts")(&err)

	err = s.db.WithContext(ctx).Model(&Wallet{}).
		Where("chat_id = ? AND public_key IN ?", owner, publicKeys).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("deactivate wallets: %w", err)
	}
	return nil
}

// ClearAccounts deletes every record of owner.
func (s *SessionStore) ClearAccounts(ctx context.Context, owner string) (n int, err error) {
	defer observe("clear_accounts")(&err)

	res := s.db.WithContext(ctx).Where("chat_id = ?", owner).Delete(&Wallet{})
	if res.Error != nil {
		err = fmt.Errorf("delete wallets: %w", res.Error)
		return 0, err
	}
	return int(res.RowsAffected), nil
}

// MarkSessionStopped stamps stopped_at on the owner's open session.
func (s *SessionStore) MarkSessionStopped(ctx context.Context, owner string) (err error) {
	defer observe("mark_session_stopped")(&err)

	err = s.db.WithContext(ctx).Model(&MonitoringSession{}).
		Where("chat_id = ? AND stopped_at IS NULL", owner).
		Update("stopped_at", s.now()).Error
	if err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	return nil
}

// FindLastOpenSession returns the most recently started open session.
func (s *SessionStore) FindLastOpenSession(ctx context.Context) (_ *domain.Session, err error) {
	defer observe("find_last_open_session")(&err)

	var row MonitoringSession
	err = s.db.WithContext(ctx).
		Where("stopped_at IS NULL").
		Order("started_at DESC, id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find open session: %w", err)
	}

	return &domain.Session{
		Owner:        row.ChatID,
		StartedAt:    row.StartedAt,
		StoppedAt:    row.StoppedAt,
		AccountCount: row.WalletCount,
	}, nil
}

// Stats summarizes the owner's records.
func (s *SessionStore) Stats(ctx context.Context, owner string) (_ *domain.AccountStats, err error) {
	defer observe("stats")(&err)

	db := s.db.WithContext(ctx)
	var total, active int64

	if err = db.Model(&Wallet{}).Where("chat_id = ?", owner).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count wallets: %w", err)
	}
	if err = db.Model(&Wallet{}).Where("chat_id = ? AND is_active = ?", owner, true).Count(&active).Error; err != nil {
		return nil, fmt.Errorf("count active wallets: %w", err)
	}

	stats := &domain.AccountStats{Total: int(total), Active: int(active)}
	if total == 0 {
		return stats, nil
	}

	var first Wallet
	if err = db.Where("chat_id = ?", owner).Order("created_at ASC").First(&first).Error; err != nil {
		return nil, fmt.Errorf("first wallet: %w", err)
	}
	stats.FirstAddedAt = &first.CreatedAt
	return stats, nil
}

func toRecord(w Wallet) domain.CredentialRecord {
	return domain.CredentialRecord{
		Secret:    w.PrivateKey,
		PublicKey: w.PublicKey,
		Owner:     w.ChatID,
		Position:  w.Position,
		Active:    w.IsActive,
		CreatedAt: w.CreatedAt,
	}
}
