package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/frontdeskhq/callback-platform/internal/business"
	"github.com/frontdeskhq/callback-platform/internal/observability/metrics"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

var tracer = otel.Tracer("frontdesk.internal.scheduling")

// Service computes availability and allocates conflict-free appointments.
type Service struct {
	store           AppointmentStore
	calendar        Calendar
	metrics         *metrics.EngineMetrics
	logger          *logging.Logger
	calendarTimeout time.Duration

	now func() time.Time
}

// NewService wires the slot scheduler.
func NewService(store AppointmentStore, cal Calendar, m *metrics.EngineMetrics, logger *logging.Logger, calendarTimeout time.Duration) *Service {
	if store == nil {
		panic("scheduling: appointment store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if calendarTimeout <= 0 {
		calendarTimeout = 8 * time.Second
	}
	return &Service{
		store:           store,
		calendar:        cal,
		metrics:         m,
		logger:          logger,
		calendarTimeout: calendarTimeout,
		now:             time.Now,
	}
}

// ListAvailableSlots enumerates open slots between from and to (inclusive
// dates in the business timezone), excluding anything that overlaps a
// confirmed appointment expanded by the buffer, a calendar busy interval, or
// the past.
func (s *Service) ListAvailableSlots(ctx context.Context, biz *business.Business, from, to time.Time) (SlotList, error) {
	ctx, span := tracer.Start(ctx, "scheduling.list_slots")
	defer span.End()
	span.SetAttributes(attribute.String("frontdesk.business_id", biz.ID))

	loc := biz.Location()
	rangeStart := midnight(from.In(loc))
	rangeEnd := midnight(to.In(loc)).AddDate(0, 0, 1)
	if !rangeEnd.After(rangeStart) {
		return SlotList{}, fmt.Errorf("scheduling: empty date range")
	}

	appts, err := s.confirmedAppointments(ctx, biz, rangeStart, rangeEnd)
	if err != nil {
		return SlotList{}, err
	}
	busy := s.busyIntervals(ctx, biz, rangeStart, rangeEnd)

	now := s.now().In(loc)
	duration := biz.Booking.SlotDuration()
	buffer := biz.Booking.Buffer()

	result := SlotList{}
	for day := rangeStart; day.Before(rangeEnd); day = day.AddDate(0, 0, 1) {
		open, close, ok := biz.Booking.Hours.Window(day)
		if !ok {
			continue
		}
		result.HadWindows = true

		for start := open; !start.Add(duration).After(close); start = start.Add(duration) {
			if !start.After(now) {
				continue
			}
			end := start.Add(duration)
			if conflictsWithAppointments(start, end, appts, duration, buffer) {
				continue
			}
			if conflictsWithBusy(start, end, busy) {
				continue
			}
			result.Slots = append(result.Slots, Slot{Start: start, End: end})
		}
	}
	return result, nil
}

// CreateBooking re-validates the slot and persists the appointment in a
// single conditional insert: concurrent requests for the same slot yield
// exactly one confirmed appointment, the rest fail with ErrSlotTaken.
func (s *Service) CreateBooking(ctx context.Context, biz *business.Business, slotStart time.Time, req BookingRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "scheduling.create_booking")
	defer span.End()
	span.SetAttributes(attribute.String("frontdesk.business_id", biz.ID))

	if err := validateBookingRequest(biz, req); err != nil {
		s.metrics.ObserveBooking("rejected")
		return nil, err
	}

	loc := biz.Location()
	slotStart = slotStart.In(loc)
	if !slotStart.After(s.now().In(loc)) {
		s.metrics.ObserveBooking("rejected")
		return nil, ErrPastSlot
	}

	duration := biz.Booking.SlotDuration()
	buffer := biz.Booking.Buffer()
	slotEnd := slotStart.Add(duration)

	// Freshness check against the same overlap rule the availability list
	// uses. The insert below remains the final word for equal slot starts.
	appts, err := s.confirmedAppointments(ctx, biz, slotStart.Add(-(duration + buffer)), slotEnd.Add(duration+buffer))
	if err != nil {
		return nil, err
	}
	if conflictsWithAppointments(slotStart, slotEnd, appts, duration, buffer) {
		s.metrics.ObserveBooking("slot_taken")
		return nil, ErrSlotTaken
	}
	if conflictsWithBusy(slotStart, slotEnd, s.busyIntervals(ctx, biz, slotStart, slotEnd)) {
		s.metrics.ObserveBooking("slot_taken")
		return nil, ErrSlotTaken
	}

	appt := &Appointment{
		BusinessID:     biz.ID,
		ConversationID: req.ConversationID,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		CustomerEmail:  req.CustomerEmail,
		Service:        req.Service,
		ScheduledAt:    slotStart,
		Timezone:       biz.Timezone,
		Status:         StatusConfirmed,
		Notes:          req.Notes,
	}
	if err := s.store.InsertConfirmedIfFree(ctx, appt); err != nil {
		if err == ErrSlotTaken {
			s.metrics.ObserveBooking("slot_taken")
		}
		return nil, err
	}

	// Calendar mirroring is best effort: the booking stays confirmed even
	// when the mirror fails.
	s.mirrorToCalendar(ctx, biz, appt)

	s.metrics.ObserveBooking("confirmed")
	s.logger.Info("booking confirmed",
		"business_id", biz.ID,
		"appointment_id", appt.ID,
		"scheduled_at", appt.ScheduledAt,
		"service", appt.Service,
	)
	return appt, nil
}

// CancelBooking transitions the appointment to cancelled and best-effort
// removes the mirrored calendar event, tolerating "already gone".
func (s *Service) CancelBooking(ctx context.Context, biz *business.Business, appointmentID string) error {
	appt, err := s.store.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if err := s.store.UpdateStatus(ctx, appointmentID, StatusCancelled); err != nil {
		return err
	}
	s.deleteMirroredEvent(ctx, biz, appt)
	return nil
}

// DeleteBooking removes the row entirely, best-effort deleting the mirrored
// event first.
func (s *Service) DeleteBooking(ctx context.Context, biz *business.Business, appointmentID string) error {
	appt, err := s.store.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	s.deleteMirroredEvent(ctx, biz, appt)
	return s.store.Delete(ctx, appointmentID)
}

// confirmedAppointments loads confirmed rows and lazily reconciles any whose
// mirrored calendar event disappeared externally: those transition to
// cancelled before results are returned, per the read-path sweep.
func (s *Service) confirmedAppointments(ctx context.Context, biz *business.Business, from, to time.Time) ([]Appointment, error) {
	appts, err := s.store.ListConfirmedBetween(ctx, biz.ID, from, to)
	if err != nil {
		return nil, err
	}
	if s.calendar == nil || biz.CalendarID == "" {
		return appts, nil
	}

	live := appts[:0]
	for _, appt := range appts {
		if appt.CalendarEventID == "" {
			live = append(live, appt)
			continue
		}
		exists, err := s.eventExists(ctx, biz.CalendarID, appt.CalendarEventID)
		if err != nil {
			// Unreachable calendar is not evidence the event is gone.
			live = append(live, appt)
			continue
		}
		if exists {
			live = append(live, appt)
			continue
		}
		if err := s.store.UpdateStatus(ctx, appt.ID, StatusCancelled); err != nil {
			s.logger.Error("failed to reconcile cancelled appointment", "error", err, "appointment_id", appt.ID)
			live = append(live, appt)
			continue
		}
		s.logger.Info("appointment cancelled after calendar event vanished",
			"business_id", biz.ID, "appointment_id", appt.ID)
	}
	return live, nil
}

func (s *Service) busyIntervals(ctx context.Context, biz *business.Business, from, to time.Time) []Interval {
	if s.calendar == nil || biz.CalendarID == "" {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.calendarTimeout)
	defer cancel()
	busy, err := s.calendar.ListBusyIntervals(callCtx, biz.CalendarID, from, to)
	if err != nil {
		s.logger.Error("busy interval lookup failed", "error", err, "business_id", biz.ID)
		return nil
	}
	return busy
}

func (s *Service) eventExists(ctx context.Context, calendarID, eventID string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.calendarTimeout)
	defer cancel()
	return s.calendar.EventExists(callCtx, calendarID, eventID)
}

func (s *Service) mirrorToCalendar(ctx context.Context, biz *business.Business, appt *Appointment) {
	if s.calendar == nil || biz.CalendarID == "" {
		return
	}
	event := Event{
		Summary:     fmt.Sprintf("%s - %s", appt.Service, appt.CustomerName),
		Description: appt.Notes,
		Start:       appt.ScheduledAt,
		End:         appt.ScheduledAt.Add(biz.Booking.SlotDuration()),
	}

	var eventID string
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.calendarTimeout)
		eventID, err = s.calendar.CreateEvent(callCtx, biz.CalendarID, event)
		cancel()
		if err == nil {
			break
		}
	}
	if err != nil {
		s.logger.Error("calendar mirror failed, booking kept without reference",
			"error", err, "appointment_id", appt.ID, "business_id", biz.ID)
		return
	}

	appt.CalendarEventID = eventID
	if err := s.store.SetCalendarEventID(ctx, appt.ID, eventID); err != nil {
		s.logger.Error("failed to persist calendar event reference", "error", err, "appointment_id", appt.ID)
	}
}

func (s *Service) deleteMirroredEvent(ctx context.Context, biz *business.Business, appt *Appointment) {
	if s.calendar == nil || biz.CalendarID == "" || appt.CalendarEventID == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.calendarTimeout)
	defer cancel()
	if err := s.calendar.DeleteEvent(callCtx, biz.CalendarID, appt.CalendarEventID); err != nil {
		s.logger.Warn("failed to delete mirrored calendar event", "error", err, "appointment_id", appt.ID)
	}
}

func validateBookingRequest(biz *business.Business, req BookingRequest) error {
	if strings.TrimSpace(req.CustomerName) == "" {
		return &ValidationError{Reason: "customer name is required"}
	}
	if strings.TrimSpace(req.CustomerPhone) == "" {
		return &ValidationError{Reason: "customer phone is required"}
	}
	if strings.TrimSpace(req.Service) == "" {
		return &ValidationError{Reason: "service type is required"}
	}
	if biz.Booking.RequireNotes && strings.TrimSpace(req.Notes) == "" {
		return &ValidationError{Reason: "notes are required for this business"}
	}
	return nil
}

func conflictsWithAppointments(start, end time.Time, appts []Appointment, duration, buffer time.Duration) bool {
	for _, appt := range appts {
		apptStart := appt.ScheduledAt.Add(-buffer)
		apptEnd := appt.ScheduledAt.Add(duration + buffer)
		if overlaps(start, end, apptStart, apptEnd) {
			return true
		}
	}
	return false
}

func conflictsWithBusy(start, end time.Time, busy []Interval) bool {
	for _, interval := range busy {
		if overlaps(start, end, interval.Start, interval.End) {
			return true
		}
	}
	return false
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
