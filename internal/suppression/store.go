package suppression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the pool subset the store needs; pgxmock satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists suppression policy state in Postgres.
type Store struct {
	pool PgxPool
}

// NewStore creates the Postgres-backed policy store.
func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("suppression: pgx pool required")
	}
	return &Store{pool: pool}
}

// IsBlocked reports whether the caller is on the business's block list.
func (s *Store) IsBlocked(ctx context.Context, businessID, phone string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM blocked_numbers
		WHERE business_id = $1 AND phone = $2
		LIMIT 1
	`, businessID, phone).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("suppression: block list lookup: %w", err)
	}
	return true, nil
}

// ContactStatus reports contact-book membership and the cooldown-bypass flag.
func (s *Store) ContactStatus(ctx context.Context, businessID, phone string) (bool, bool, error) {
	var bypass bool
	err := s.pool.QueryRow(ctx, `
		SELECT bypass_cooldown FROM contacts
		WHERE business_id = $1 AND phone = $2
		LIMIT 1
	`, businessID, phone).Scan(&bypass)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("suppression: contact lookup: %w", err)
	}
	return true, bypass, nil
}

// InsertRecord appends a suppression record. Records are never mutated after
// creation.
func (s *Store) InsertRecord(ctx context.Context, rec Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO suppression_records (id, business_id, caller_phone, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), rec.BusinessID, rec.CallerPhone, string(rec.Reason), createdAt)
	if err != nil {
		return fmt.Errorf("suppression: insert record: %w", err)
	}
	return nil
}

// ListRecords returns recent suppression records for reporting, newest first.
func (s *Store) ListRecords(ctx context.Context, businessID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT business_id, caller_phone, reason, created_at
		FROM suppression_records
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("suppression: list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var reason string
		if err := rows.Scan(&rec.BusinessID, &rec.CallerPhone, &reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("suppression: scan record: %w", err)
		}
		rec.Reason = Reason(reason)
		records = append(records, rec)
	}
	return records, rows.Err()
}
