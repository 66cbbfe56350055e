package scheduling

import "time"

// AppointmentStatus tracks the lifecycle of a booking.
type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Appointment is a booked slot. CalendarEventID is empty when calendar
// mirroring failed or is not configured; the booking is still valid.
type Appointment struct {
	ID              string
	BusinessID      string
	ConversationID  string
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	Service         string
	ScheduledAt     time.Time
	Timezone        string
	Status          AppointmentStatus
	Notes           string
	CalendarEventID string
	CreatedAt       time.Time
}

// Slot is a candidate appointment start of fixed duration.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SlotList distinguishes "no slots because all were consumed" from "no slots
// because no hours are configured for the range".
type SlotList struct {
	Slots      []Slot `json:"slots"`
	HadWindows bool   `json:"had_windows"`
}

// BookingRequest carries customer details for a new booking.
type BookingRequest struct {
	ConversationID string
	CustomerName   string
	CustomerPhone  string
	CustomerEmail  string
	Service        string
	Notes          string
}
