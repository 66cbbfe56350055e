package business

import (
	"fmt"
	"time"
)

// DayWindow is the open/close window for one weekday in the business's local
// time. An empty Open means the business is closed that day.
type DayWindow struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// WeekSchedule holds one window per weekday, indexed by time.Weekday
// (Sunday = 0).
type WeekSchedule [7]DayWindow

// Window returns the open and close instants for the given local date, or
// ok=false when the business is closed that day.
func (ws WeekSchedule) Window(date time.Time) (open, close time.Time, ok bool) {
	day := ws[int(date.Weekday())]
	if day.Open == "" || day.Close == "" {
		return time.Time{}, time.Time{}, false
	}
	openMin, err := parseClock(day.Open)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	closeMin, err := parseClock(day.Close)
	if err != nil || closeMin <= openMin {
		return time.Time{}, time.Time{}, false
	}
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return midnight.Add(time.Duration(openMin) * time.Minute),
		midnight.Add(time.Duration(closeMin) * time.Minute),
		true
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("business: parse clock %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// BookingConfig carries per-business scheduling knobs.
type BookingConfig struct {
	SlotDurationMinutes int          `json:"slot_duration_minutes"`
	BufferMinutes       int          `json:"buffer_minutes"`
	RequireNotes        bool         `json:"require_notes"`
	Services            []string     `json:"services"`
	Hours               WeekSchedule `json:"hours"`
}

// SlotDuration returns the configured slot length, defaulting to 30 minutes.
func (c BookingConfig) SlotDuration() time.Duration {
	if c.SlotDurationMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.SlotDurationMinutes) * time.Minute
}

// Buffer returns the mandatory idle time around bookings.
func (c BookingConfig) Buffer() time.Duration {
	if c.BufferMinutes <= 0 {
		return 0
	}
	return time.Duration(c.BufferMinutes) * time.Minute
}

// Persona holds the AI-facing profile fields used to build the system prompt.
type Persona struct {
	Greeting     string `json:"greeting"`
	Context      string `json:"context"`
	Instructions string `json:"instructions"`
}

// Business is a tenant profile. The engine treats it as read-only within a
// conversation turn.
type Business struct {
	ID         string
	Slug       string
	Name       string
	Phone      string
	Timezone   string
	OwnerEmail string
	CalendarID string
	Booking    BookingConfig
	Persona    Persona
	CreatedAt  time.Time
}

// Location resolves the business timezone, falling back to UTC when the
// stored zone name is unknown.
func (b *Business) Location() *time.Location {
	if b == nil || b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
