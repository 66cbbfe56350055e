package scheduling

import (
	"context"
	"time"
)

// Interval is a half-open busy window [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Event is the payload mirrored to the external calendar.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Calendar is the external system of record for busy/free time. All calls are
// best-effort from the scheduler's point of view: bookings never fail because
// the calendar is down.
type Calendar interface {
	ListBusyIntervals(ctx context.Context, calendarID string, from, to time.Time) ([]Interval, error)
	CreateEvent(ctx context.Context, calendarID string, event Event) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	EventExists(ctx context.Context, calendarID, eventID string) (bool, error)
}
