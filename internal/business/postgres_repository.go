package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool used by the repository; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores business profiles in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("business: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const businessColumns = `
	id, slug, name, phone, timezone, owner_email, calendar_id,
	slot_duration_minutes, buffer_minutes, require_notes,
	services, working_hours, greeting, persona_context, instructions, created_at
`

// GetByID fetches a business by primary key.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Business, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id)
	return scanBusiness(row)
}

// GetByPhone resolves the business owning the given E.164 number.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*Business, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE phone = $1`, phone)
	return scanBusiness(row)
}

// GetBySlug resolves the business by its public booking-page slug.
func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*Business, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE slug = $1`, slug)
	return scanBusiness(row)
}

func scanBusiness(row pgx.Row) (*Business, error) {
	var (
		b            Business
		servicesJSON []byte
		hoursJSON    []byte
	)
	err := row.Scan(
		&b.ID, &b.Slug, &b.Name, &b.Phone, &b.Timezone, &b.OwnerEmail, &b.CalendarID,
		&b.Booking.SlotDurationMinutes, &b.Booking.BufferMinutes, &b.Booking.RequireNotes,
		&servicesJSON, &hoursJSON,
		&b.Persona.Greeting, &b.Persona.Context, &b.Persona.Instructions, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("business: select failed: %w", err)
	}
	if len(servicesJSON) > 0 {
		if err := json.Unmarshal(servicesJSON, &b.Booking.Services); err != nil {
			return nil, fmt.Errorf("business: decode services: %w", err)
		}
	}
	if len(hoursJSON) > 0 {
		if err := json.Unmarshal(hoursJSON, &b.Booking.Hours); err != nil {
			return nil, fmt.Errorf("business: decode working hours: %w", err)
		}
	}
	return &b, nil
}
