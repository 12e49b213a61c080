package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"solana-sweeper/internal/domain"
	"solana-sweeper/internal/storage"
)

// SweepStore implements storage.SweepStore using ClickHouse.
type SweepStore struct {
	conn *Conn
}

// NewSweepStore creates a new SweepStore.
func NewSweepStore(conn *Conn) *SweepStore {
	return &SweepStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SweepStore = (*SweepStore)(nil)

// Insert appends a sweep record. Returns ErrDuplicateKey if the ID exists.
// MergeTree does not enforce uniqueness, so the ID is checked first.
func (s *SweepStore) Insert(ctx context.Context, r *domain.SweepRecord) (err error) {
	if r == nil || r.ID == "" || r.Owner == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert_sweep")(&err)

	exists, err := s.exists(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sweeps (
			id, owner, account, destination, observed, amount,
			signature, status, reason, latency_ms, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		r.ID, r.Owner, r.Account, r.Destination, r.Observed, r.Amount,
		r.Signature, string(r.Status), r.Reason, r.LatencyMs, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListByOwner returns up to limit records of owner, newest first.
func (s *SweepStore) ListByOwner(ctx context.Context, owner string, limit int) (_ []*domain.SweepRecord, err error) {
	defer observe("list_sweeps")(&err)

	query := `
		SELECT id, owner, account, destination, observed, amount,
		       signature, status, reason, latency_ms, created_at
		FROM sweeps
		WHERE owner = ?
		ORDER BY created_at DESC, id DESC
	`
	args := []any{owner}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sweeps by owner: %w", err)
	}
	defer rows.Close()

	return scanSweeps(rows)
}

func (s *SweepStore) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM sweeps WHERE id = ?`, id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanSweeps(rows driver.Rows) ([]*domain.SweepRecord, error) {
	var out []*domain.SweepRecord

	for rows.Next() {
		var (
			r      domain.SweepRecord
			status string
		)
		err := rows.Scan(
			&r.ID, &r.Owner, &r.Account, &r.Destination, &r.Observed, &r.Amount,
			&r.Signature, &status, &r.Reason, &r.LatencyMs, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sweep row: %w", err)
		}
		r.Status = domain.SweepStatus(status)
		out = append(out, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweep rows: %w", err)
	}

	return out, nil
}
