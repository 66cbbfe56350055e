package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/frontdeskhq/callback-platform/internal/business"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

type memAppointmentStore struct {
	mu    sync.Mutex
	byID  map[string]*Appointment
	slots map[string]string // businessID|start -> appointment id
}

func newMemAppointmentStore() *memAppointmentStore {
	return &memAppointmentStore{
		byID:  make(map[string]*Appointment),
		slots: make(map[string]string),
	}
}

func slotKey(businessID string, start time.Time) string {
	return fmt.Sprintf("%s|%d", businessID, start.Unix())
}

func (m *memAppointmentStore) InsertConfirmedIfFree(ctx context.Context, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := slotKey(appt.BusinessID, appt.ScheduledAt)
	if existing, ok := m.slots[key]; ok {
		if cur := m.byID[existing]; cur != nil && cur.Status == StatusConfirmed {
			return ErrSlotTaken
		}
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	appt.Status = StatusConfirmed
	appt.CreatedAt = time.Now()
	cp := *appt
	m.byID[appt.ID] = &cp
	m.slots[key] = appt.ID
	return nil
}

func (m *memAppointmentStore) ListConfirmedBetween(ctx context.Context, businessID string, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, appt := range m.byID {
		if appt.BusinessID != businessID || appt.Status != StatusConfirmed {
			continue
		}
		if appt.ScheduledAt.Before(from) || !appt.ScheduledAt.Before(to) {
			continue
		}
		out = append(out, *appt)
	}
	return out, nil
}

func (m *memAppointmentStore) GetByID(ctx context.Context, id string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *appt
	return &cp, nil
}

func (m *memAppointmentStore) UpdateStatus(ctx context.Context, id string, status AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.byID[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	appt.Status = status
	return nil
}

func (m *memAppointmentStore) SetCalendarEventID(ctx context.Context, id, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.byID[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	appt.CalendarEventID = eventID
	return nil
}

func (m *memAppointmentStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.byID[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	delete(m.slots, slotKey(appt.BusinessID, appt.ScheduledAt))
	delete(m.byID, id)
	return nil
}

type fakeCalendar struct {
	mu         sync.Mutex
	busy       []Interval
	events     map[string]bool
	failCreate bool
	created    int
	deleted    []string
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string]bool)}
}

func (f *fakeCalendar) ListBusyIntervals(ctx context.Context, calendarID string, from, to time.Time) ([]Interval, error) {
	return f.busy, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, calendarID string, event Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	if f.failCreate {
		return "", errors.New("calendar unavailable")
	}
	id := uuid.NewString()
	f.events[id] = true
	return id, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, eventID)
	delete(f.events, eventID)
	return nil
}

func (f *fakeCalendar) EventExists(ctx context.Context, calendarID, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[eventID], nil
}

func testBusiness() *business.Business {
	var hours business.WeekSchedule
	for day := time.Monday; day <= time.Friday; day++ {
		hours[int(day)] = business.DayWindow{Open: "09:00", Close: "17:00"}
	}
	return &business.Business{
		ID:         "biz-1",
		Slug:       "sparkle-dental",
		Name:       "Sparkle Dental",
		Timezone:   "America/Chicago",
		CalendarID: "cal-1",
		Booking: business.BookingConfig{
			SlotDurationMinutes: 30,
			BufferMinutes:       0,
			Services:            []string{"Cleaning", "Whitening"},
			Hours:               hours,
		},
	}
}

func newTestService(store AppointmentStore, cal Calendar, now time.Time) *Service {
	svc := NewService(store, cal, nil, logging.Default(), time.Second)
	svc.now = func() time.Time { return now }
	return svc
}

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestListAvailableSlotsExcludesBookedSlot(t *testing.T) {
	loc := chicago(t)
	biz := testBusiness()
	store := newMemAppointmentStore()
	// Existing confirmed booking Thursday 2024-01-18 10:00-10:30.
	if err := store.InsertConfirmedIfFree(context.Background(), &Appointment{
		BusinessID:    biz.ID,
		CustomerName:  "Sarah Lee",
		CustomerPhone: "+15550001",
		Service:       "Cleaning",
		ScheduledAt:   time.Date(2024, 1, 18, 10, 0, 0, 0, loc),
	}); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	now := time.Date(2024, 1, 18, 0, 30, 0, 0, loc)
	svc := newTestService(store, nil, now)

	day := time.Date(2024, 1, 18, 0, 0, 0, 0, loc)
	list, err := svc.ListAvailableSlots(context.Background(), biz, day, day)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	if !list.HadWindows {
		t.Fatal("weekday should report configured windows")
	}

	starts := map[string]bool{}
	for _, slot := range list.Slots {
		starts[slot.Start.Format("15:04")] = true
	}
	if starts["10:00"] {
		t.Fatal("10:00 should be excluded by the existing booking")
	}
	for _, want := range []string{"09:00", "09:30", "10:30", "16:30"} {
		if !starts[want] {
			t.Fatalf("expected %s slot to be available, got %v", want, starts)
		}
	}
	// 9:00-17:00 with one 30m booking: 16 candidates minus 1.
	if len(list.Slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(list.Slots))
	}
}

func TestListAvailableSlotsBufferExpandsConflicts(t *testing.T) {
	loc := chicago(t)
	biz := testBusiness()
	biz.Booking.BufferMinutes = 15
	store := newMemAppointmentStore()
	if err := store.InsertConfirmedIfFree(context.Background(), &Appointment{
		BusinessID:    biz.ID,
		CustomerName:  "A",
		CustomerPhone: "+1",
		Service:       "Cleaning",
		ScheduledAt:   time.Date(2024, 1, 18, 10, 0, 0, 0, loc),
	}); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	svc := newTestService(store, nil, time.Date(2024, 1, 18, 0, 0, 0, 0, loc))
	day := time.Date(2024, 1, 18, 0, 0, 0, 0, loc)
	list, err := svc.ListAvailableSlots(context.Background(), biz, day, day)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}

	for _, slot := range list.Slots {
		switch slot.Start.Format("15:04") {
		case "09:30", "10:00", "10:30":
			t.Fatalf("slot %s should be blocked by buffered booking", slot.Start.Format("15:04"))
		}
	}
}

func TestListAvailableSlotsExcludesCalendarBusyAndPast(t *testing.T) {
	loc := chicago(t)
	biz := testBusiness()
	cal := newFakeCalendar()
	cal.busy = []Interval{{
		Start: time.Date(2024, 1, 18, 14, 0, 0, 0, loc),
		End:   time.Date(2024, 1, 18, 15, 0, 0, 0, loc),
	}}

	// Mid-day: morning slots are already in the past.
	now := time.Date(2024, 1, 18, 12, 15, 0, 0, loc)
	svc := newTestService(newMemAppointmentStore(), cal, now)
	day := time.Date(2024, 1, 18, 0, 0, 0, 0, loc)
	list, err := svc.ListAvailableSlots(context.Background(), biz, day, day)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}

	for _, slot := range list.Slots {
		if !slot.Start.After(now) {
			t.Fatalf("slot %s should be excluded as past", slot.Start)
		}
		hm := slot.Start.Format("15:04")
		if hm == "14:00" || hm == "14:30" {
			t.Fatalf("slot %s should be blocked by busy interval", hm)
		}
	}
	if len(list.Slots) == 0 {
		t.Fatal("afternoon should still have open slots")
	}
}

func TestListAvailableSlotsDistinguishesClosedFromFull(t *testing.T) {
	loc := chicago(t)
	biz := testBusiness()
	svc := newTestService(newMemAppointmentStore(), nil, time.Date(2024, 1, 18, 0, 0, 0, 0, loc))

	// Sunday 2024-01-21 has no configured hours.
	sunday := time.Date(2024, 1, 21, 0, 0, 0, 0, loc)
	list, err := svc.ListAvailableSlots(context.Background(), biz, sunday, sunday)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	if list.HadWindows || len(list.Slots) != 0 {
		t.Fatalf("closed day should report no windows, got %+v", list)
	}

	// Thursday evening: windows existed but every slot is in the past.
	evening := time.Date(2024, 1, 18, 18, 0, 0, 0, loc)
	svc = newTestService(newMemAppointmentStore(), nil, evening)
	day := time.Date(2024, 1, 18, 0, 0, 0, 0, loc)
	list, err = svc.ListAvailableSlots(context.Background(), biz, day, day)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	if !list.HadWindows || len(list.Slots) != 0 {
		t.Fatalf("consumed day should report windows with zero slots, got %+v", list)
	}
}

func TestCreateBookingConcurrentSameSlot(t *testing.T) {
	loc := chicago(t)
	biz := testBusiness()
	store := newMemAppointmentStore()
	now := time.Date(2024, 1, 18, 8, 0, 0, 0, loc)
	svc := newTestService(store, nil, now)

	slot := time.Date(2024, 1, 18, 10, 0, 0, 0, loc)
	const attempts = 8

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateBooking(context.Background(), biz, slot, BookingRequest{
				CustomerName:  fmt.Sprintf("Caller %d", i),
				CustomerPhone: fmt.Sprintf("+1555000%d", i),
				Service:       "Cleaning",
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var succeeded, taken int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrSlotTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || taken != attempts-1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", succeeded, taken)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	loc := chicago(t)
	biz := testBusiness()
	svc := newTestService(newMemAppointmentStore(), nil, time.Date(2024, 1, 18, 8, 0, 0, 0, loc))
	slot := time.Date(2024, 1, 18, 10, 0, 0, 0, loc)

	cases := []BookingRequest{
		{CustomerPhone: "+1555", Service: "Cleaning"}, // missing name
		{CustomerName: "A", Service: "Cleaning"},      // missing phone
		{CustomerName: "A", CustomerPhone: "+1555"},   // missing service
	}
	for _, req := range cases {
		if _, err := svc.CreateBooking(context.Background(), biz, slot, req); !IsValidation(err) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}

	biz.Booking.RequireNotes = true
	_, err := svc.CreateBooking(context.Background(), biz, slot, BookingRequest{
		CustomerName: "A", CustomerPhone: "+1555", Service: "Cleaning",
	})
	if !IsValidation(err) {
		t.Fatalf("expected notes validation error, got %v", err)
	}
}

func TestCreateBookingRejectsPastSlot(t *testing.T) {
	loc := chicago(t)
	biz := testBusiness()
	svc := newTestService(newMemAppointmentStore(), nil, time.Date(2024, 1, 18, 12, 0, 0, 0, loc))

	_, err := svc.CreateBooking(context.Background(), biz, time.Date(2024, 1, 18, 9, 0, 0, 0, loc), BookingRequest{
		CustomerName: "A", CustomerPhone: "+1555", Service: "Cleaning",
	})
	if !errors.Is(err, ErrPastSlot) {
		t.Fatalf("expected ErrPastSlot, got %v", err)
	}
}

func TestCreateBookingSurvivesCalendarFailure(t *testing.T) {
	loc := chicago(t)
	biz := testBusiness()
	store := newMemAppointmentStore()
	cal := newFakeCalendar()
	cal.failCreate = true
	svc := newTestService(store, cal, time.Date(2024, 1, 18, 8, 0, 0, 0, loc))

	appt, err := svc.CreateBooking(context.Background(), biz, time.Date(2024, 1, 18, 10, 0, 0, 0, loc), BookingRequest{
		CustomerName: "Sarah Lee", CustomerPhone: "+1555", Service: "Cleaning",
	})
	if err != nil {
		t.Fatalf("booking should survive calendar failure: %v", err)
	}
	if appt.CalendarEventID != "" {
		t.Fatal("failed mirror must leave calendar reference empty")
	}
	if cal.created != 2 {
		t.Fatalf("calendar create should be retried exactly once, got %d attempts", cal.created)
	}
	stored, err := store.GetByID(context.Background(), appt.ID)
	if err != nil || stored.Status != StatusConfirmed {
		t.Fatalf("booking should be persisted confirmed, got %+v err=%v", stored, err)
	}
}

func TestReconcileVanishedCalendarEvent(t *testing.T) {
	loc := chicago(t)
	biz := testBusiness()
	store := newMemAppointmentStore()
	cal := newFakeCalendar()
	svc := newTestService(store, cal, time.Date(2024, 1, 18, 8, 0, 0, 0, loc))

	appt, err := svc.CreateBooking(context.Background(), biz, time.Date(2024, 1, 18, 10, 0, 0, 0, loc), BookingRequest{
		CustomerName: "Sarah Lee", CustomerPhone: "+1555", Service: "Cleaning",
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if appt.CalendarEventID == "" {
		t.Fatal("expected calendar reference")
	}

	// Event deleted behind our back.
	delete(cal.events, appt.CalendarEventID)

	day := time.Date(2024, 1, 18, 0, 0, 0, 0, loc)
	list, err := svc.ListAvailableSlots(context.Background(), biz, day, day)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}

	stored, err := store.GetByID(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("get appointment: %v", err)
	}
	if stored.Status != StatusCancelled {
		t.Fatalf("appointment should be reconciled to cancelled, got %s", stored.Status)
	}

	// The freed slot is available again.
	found := false
	for _, slot := range list.Slots {
		if slot.Start.Format("15:04") == "10:00" {
			found = true
		}
	}
	if !found {
		t.Fatal("reconciled slot should be offered again")
	}
}

func TestCancelBookingDeletesMirroredEvent(t *testing.T) {
	loc := chicago(t)
	biz := testBusiness()
	store := newMemAppointmentStore()
	cal := newFakeCalendar()
	svc := newTestService(store, cal, time.Date(2024, 1, 18, 8, 0, 0, 0, loc))

	appt, err := svc.CreateBooking(context.Background(), biz, time.Date(2024, 1, 18, 10, 0, 0, 0, loc), BookingRequest{
		CustomerName: "Sarah Lee", CustomerPhone: "+1555", Service: "Cleaning",
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	if err := svc.CancelBooking(context.Background(), biz, appt.ID); err != nil {
		t.Fatalf("cancel booking: %v", err)
	}
	stored, _ := store.GetByID(context.Background(), appt.ID)
	if stored.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", stored.Status)
	}
	if len(cal.deleted) != 1 {
		t.Fatalf("expected mirrored event delete, got %v", cal.deleted)
	}
}
