package scheduling

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

// AppointmentStore is the persistence surface the scheduler needs. Tests use
// an in-memory fake; production uses PostgresAppointmentStore.
type AppointmentStore interface {
	// InsertConfirmedIfFree inserts a confirmed appointment as a single
	// conditional operation. A concurrent booking for the same business and
	// slot start surfaces as ErrSlotTaken, never as a double booking.
	InsertConfirmedIfFree(ctx context.Context, appt *Appointment) error
	ListConfirmedBetween(ctx context.Context, businessID string, from, to time.Time) ([]Appointment, error)
	GetByID(ctx context.Context, id string) (*Appointment, error)
	UpdateStatus(ctx context.Context, id string, status AppointmentStatus) error
	SetCalendarEventID(ctx context.Context, id, eventID string) error
	Delete(ctx context.Context, id string) error
}

// PostgresAppointmentStore persists appointments with pgx. The uniqueness of
// confirmed (business_id, scheduled_at) pairs is enforced by a partial unique
// index, so check-and-create is one statement.
type PostgresAppointmentStore struct {
	pool PgxPool
}

// NewPostgresAppointmentStore creates the pgx-backed store.
func NewPostgresAppointmentStore(pool PgxPool) *PostgresAppointmentStore {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &PostgresAppointmentStore{pool: pool}
}

const appointmentColumns = `
	id, business_id, COALESCE(conversation_id::text, ''), customer_name, customer_phone,
	COALESCE(customer_email, ''), service, scheduled_at, timezone, status,
	COALESCE(notes, ''), COALESCE(calendar_event_id, ''), created_at
`

// InsertConfirmedIfFree inserts the row, relying on the partial unique index
// for conflict detection.
func (s *PostgresAppointmentStore) InsertConfirmedIfFree(ctx context.Context, appt *Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	appt.Status = StatusConfirmed
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, business_id, conversation_id, customer_name, customer_phone,
			customer_email, service, scheduled_at, timezone, status, notes
		) VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, NULLIF($11, ''))
	`, appt.ID, appt.BusinessID, appt.ConversationID, appt.CustomerName, appt.CustomerPhone,
		appt.CustomerEmail, appt.Service, appt.ScheduledAt, appt.Timezone, string(StatusConfirmed), appt.Notes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlotTaken
		}
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	return nil
}

// ListConfirmedBetween returns confirmed appointments overlapping the range,
// ordered by start time.
func (s *PostgresAppointmentStore) ListConfirmedBetween(ctx context.Context, businessID string, from, to time.Time) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND status = 'confirmed'
		  AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at ASC
	`, businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *appt)
	}
	return appts, rows.Err()
}

// GetByID fetches one appointment.
func (s *PostgresAppointmentStore) GetByID(ctx context.Context, id string) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return appt, nil
}

// UpdateStatus transitions the appointment status.
func (s *PostgresAppointmentStore) UpdateStatus(ctx context.Context, id string, status AppointmentStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments SET status = $1, updated_at = now() WHERE id = $2
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("scheduling: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// SetCalendarEventID records the mirrored calendar event reference.
func (s *PostgresAppointmentStore) SetCalendarEventID(ctx context.Context, id, eventID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE appointments SET calendar_event_id = NULLIF($1, ''), updated_at = now() WHERE id = $2
	`, eventID, id)
	if err != nil {
		return fmt.Errorf("scheduling: set calendar event: %w", err)
	}
	return nil
}

// Delete removes the row.
func (s *PostgresAppointmentStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("scheduling: delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*Appointment, error) {
	var appt Appointment
	var status string
	err := row.Scan(
		&appt.ID, &appt.BusinessID, &appt.ConversationID, &appt.CustomerName, &appt.CustomerPhone,
		&appt.CustomerEmail, &appt.Service, &appt.ScheduledAt, &appt.Timezone, &status,
		&appt.Notes, &appt.CalendarEventID, &appt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
	}
	appt.Status = AppointmentStatus(status)
	return &appt, nil
}
