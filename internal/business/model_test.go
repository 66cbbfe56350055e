package business

import (
	"testing"
	"time"
)

func mondayToFriday(open, close string) WeekSchedule {
	var ws WeekSchedule
	for day := time.Monday; day <= time.Friday; day++ {
		ws[int(day)] = DayWindow{Open: open, Close: close}
	}
	return ws
}

func TestWeekScheduleWindow(t *testing.T) {
	ws := mondayToFriday("09:00", "17:00")
	loc, _ := time.LoadLocation("America/Chicago")

	// Thursday 2024-01-18
	day := time.Date(2024, 1, 18, 0, 0, 0, 0, loc)
	open, close, ok := ws.Window(day)
	if !ok {
		t.Fatal("expected weekday window")
	}
	if open.Hour() != 9 || close.Hour() != 17 {
		t.Fatalf("unexpected window %s - %s", open, close)
	}
	if open.Location() != loc {
		t.Fatal("window should stay in the business location")
	}

	// Sunday 2024-01-21 is closed
	if _, _, ok := ws.Window(time.Date(2024, 1, 21, 0, 0, 0, 0, loc)); ok {
		t.Fatal("expected closed sunday")
	}
}

func TestWeekScheduleWindowRejectsInvertedHours(t *testing.T) {
	var ws WeekSchedule
	ws[int(time.Monday)] = DayWindow{Open: "17:00", Close: "09:00"}
	if _, _, ok := ws.Window(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)); ok {
		t.Fatal("close before open should read as closed")
	}
}

func TestBookingConfigDefaults(t *testing.T) {
	var cfg BookingConfig
	if cfg.SlotDuration() != 30*time.Minute {
		t.Fatalf("default slot duration should be 30m, got %s", cfg.SlotDuration())
	}
	if cfg.Buffer() != 0 {
		t.Fatalf("default buffer should be zero, got %s", cfg.Buffer())
	}
}

func TestBusinessLocationFallsBackToUTC(t *testing.T) {
	b := &Business{Timezone: "Mars/Olympus_Mons"}
	if b.Location() != time.UTC {
		t.Fatal("unknown timezone should fall back to UTC")
	}
	var nilBiz *Business
	if nilBiz.Location() != time.UTC {
		t.Fatal("nil business should fall back to UTC")
	}
}
