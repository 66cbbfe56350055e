package scheduling

import "errors"

var (
	// ErrSlotTaken is returned when the requested slot was booked by a
	// concurrent request. Callers should re-query availability.
	ErrSlotTaken = errors.New("scheduling: slot already taken")

	// ErrPastSlot is returned for booking attempts in the past.
	ErrPastSlot = errors.New("scheduling: slot is in the past")

	// ErrAppointmentNotFound is returned when no appointment matches the id.
	ErrAppointmentNotFound = errors.New("scheduling: appointment not found")
)

// ValidationError carries a user-facing rejection reason; the conversation
// continues after one.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "scheduling: " + e.Reason
}

// IsValidation reports whether err is a booking validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
