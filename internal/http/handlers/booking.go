package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/frontdeskhq/callback-platform/internal/business"
	"github.com/frontdeskhq/callback-platform/internal/conversation"
	"github.com/frontdeskhq/callback-platform/internal/messaging"
	"github.com/frontdeskhq/callback-platform/internal/scheduling"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

const maxSlotRangeDays = 31

// SlotScheduler is the subset of the scheduling service the public booking
// surface needs.
type SlotScheduler interface {
	ListAvailableSlots(ctx context.Context, biz *business.Business, from, to time.Time) (scheduling.SlotList, error)
	CreateBooking(ctx context.Context, biz *business.Business, slotStart time.Time, req scheduling.BookingRequest) (*scheduling.Appointment, error)
}

// BookingHandler serves the public booking pages: slug-addressed availability
// and appointment creation, no auth.
type BookingHandler struct {
	businesses business.Repository
	scheduler  SlotScheduler
	logger     *logging.Logger
}

// NewBookingHandler creates the public booking handler.
func NewBookingHandler(businesses business.Repository, scheduler SlotScheduler, logger *logging.Logger) *BookingHandler {
	if businesses == nil {
		panic("handlers: business repository cannot be nil")
	}
	if scheduler == nil {
		panic("handlers: scheduler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingHandler{businesses: businesses, scheduler: scheduler, logger: logger}
}

type slotsResponse struct {
	Business   string            `json:"business"`
	Timezone   string            `json:"timezone"`
	Slots      []scheduling.Slot `json:"slots"`
	HadWindows bool              `json:"had_windows"`
}

// ListSlots handles GET /book/{slug}/slots?date=YYYY-MM-DD&days=N.
// Date defaults to today in the business timezone, days defaults to 7.
func (h *BookingHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	biz, ok := h.resolveBusiness(w, r)
	if !ok {
		return
	}
	loc := biz.Location()

	from := time.Now().In(loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		from = parsed
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid_days", "days must be a positive integer")
			return
		}
		days = parsed
	}
	if days > maxSlotRangeDays {
		days = maxSlotRangeDays
	}

	list, err := h.scheduler.ListAvailableSlots(r.Context(), biz, from, from.AddDate(0, 0, days-1))
	if err != nil {
		h.logger.Error("slot listing failed", "error", err, "business_id", biz.ID)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list slots")
		return
	}
	if list.Slots == nil {
		list.Slots = []scheduling.Slot{}
	}

	writeJSON(w, http.StatusOK, slotsResponse{
		Business:   biz.Name,
		Timezone:   biz.Timezone,
		Slots:      list.Slots,
		HadWindows: list.HadWindows,
	})
}

type createAppointmentRequest struct {
	SlotStart     string `json:"slot_start"` // RFC3339 or "YYYY-MM-DD HH:MM" in the business timezone
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email"`
	Service       string `json:"service"`
	Notes         string `json:"notes"`
}

type appointmentResponse struct {
	ID          string    `json:"id"`
	Business    string    `json:"business"`
	Service     string    `json:"service"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Timezone    string    `json:"timezone"`
	Status      string    `json:"status"`
}

// CreateAppointment handles POST /book/{slug}/appointments.
func (h *BookingHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	biz, ok := h.resolveBusiness(w, r)
	if !ok {
		return
	}

	var payload createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}

	slotStart, err := parseSlotStart(payload.SlotStart, biz.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_start", "slot_start must be RFC3339 or YYYY-MM-DD HH:MM")
		return
	}

	appt, err := h.scheduler.CreateBooking(r.Context(), biz, slotStart, scheduling.BookingRequest{
		CustomerName:  payload.CustomerName,
		CustomerPhone: messaging.NormalizeE164(payload.CustomerPhone),
		CustomerEmail: payload.CustomerEmail,
		Service:       payload.Service,
		Notes:         payload.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, scheduling.ErrSlotTaken):
			writeError(w, http.StatusConflict, "slot_taken", "that time was just taken, please pick another")
		case errors.Is(err, scheduling.ErrPastSlot):
			writeError(w, http.StatusBadRequest, "past_slot", "the requested time is in the past")
		case scheduling.IsValidation(err):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			h.logger.Error("booking failed", "error", err, "business_id", biz.ID)
			writeError(w, http.StatusInternalServerError, "internal", "failed to create booking")
		}
		return
	}

	writeJSON(w, http.StatusCreated, appointmentResponse{
		ID:          appt.ID,
		Business:    biz.Name,
		Service:     appt.Service,
		ScheduledAt: appt.ScheduledAt,
		Timezone:    appt.Timezone,
		Status:      string(appt.Status),
	})
}

func (h *BookingHandler) resolveBusiness(w http.ResponseWriter, r *http.Request) (*business.Business, bool) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing_slug", "missing business slug")
		return nil, false
	}
	biz, err := h.businesses.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, business.ErrBusinessNotFound) {
			writeError(w, http.StatusNotFound, "unknown_business", "no booking page for that slug")
			return nil, false
		}
		h.logger.Error("business lookup failed", "error", err, "slug", slug)
		writeError(w, http.StatusInternalServerError, "internal", "failed to resolve business")
		return nil, false
	}
	return biz, true
}

func parseSlotStart(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	return conversation.ParseLocalDatetime(raw, loc)
}
