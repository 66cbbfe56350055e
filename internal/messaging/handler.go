package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/frontdeskhq/callback-platform/internal/conversation"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

var handlerTracer = otel.Tracer("frontdesk.internal.messaging.handler")

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// StatusRecorder persists provider delivery reports. *conversation.Engine
// satisfies it.
type StatusRecorder interface {
	HandleDeliveryStatus(ctx context.Context, providerMessageID, status string) error
}

// Handler decodes gateway webhooks into engine requests. Unknown destination
// numbers and suppressed callers are acknowledged with 2xx and dropped; the
// gateway must never retry those.
type Handler struct {
	processor conversation.Processor
	statuses  StatusRecorder
	logger    *logging.Logger
}

// NewHandler creates the webhook handler.
func NewHandler(processor conversation.Processor, statuses StatusRecorder, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("messaging: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{processor: processor, statuses: statuses, logger: logger}
}

type telnyxEnvelope struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			ID   string `json:"id"`
			Text string `json:"text"`
			From struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"from"`
			To []struct {
				PhoneNumber string `json:"phone_number"`
				Status      string `json:"status"`
			} `json:"to"`
		} `json:"payload"`
	} `json:"data"`
}

// TelnyxWebhook handles POST /webhooks/telnyx: inbound messages and delivery
// reports share one endpoint, routed by event type.
func (h *Handler) TelnyxWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := handlerTracer.Start(r.Context(), "messaging.telnyx.webhook")
	defer span.End()

	var envelope telnyxEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Error("failed to decode telnyx webhook", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("frontdesk.event_type", envelope.Data.EventType))

	payload := envelope.Data.Payload
	var toPhone, toStatus string
	if len(payload.To) > 0 {
		toPhone = NormalizeE164(payload.To[0].PhoneNumber)
		toStatus = payload.To[0].Status
	}

	switch envelope.Data.EventType {
	case "message.received":
		from := NormalizeE164(payload.From.PhoneNumber)
		if payload.ID == "" || from == "" || payload.Text == "" {
			h.logger.Error("telnyx webhook missing required fields")
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		h.dispatchInbound(ctx, w, conversation.InboundMessageRequest{
			MessageID: payload.ID,
			FromPhone: from,
			ToPhone:   toPhone,
			Body:      payload.Text,
		})
	case "message.sent", "message.finalized", "message.delivered":
		h.recordStatus(ctx, payload.ID, toStatus)
		w.WriteHeader(http.StatusOK)
	default:
		// Unhandled event types are acked so Telnyx stops retrying.
		w.WriteHeader(http.StatusOK)
	}
}

// TwilioWebhook handles POST /webhooks/twilio for inbound SMS.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := handlerTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	messageSid := r.FormValue("MessageSid")
	from := NormalizeE164(r.FormValue("From"))
	to := NormalizeE164(r.FormValue("To"))
	body := r.FormValue("Body")
	span.SetAttributes(attribute.String("frontdesk.twilio.message_sid", messageSid))

	if messageSid == "" || from == "" || body == "" {
		h.logger.Error("twilio webhook missing required fields")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	resp, err := h.processor.HandleInbound(ctx, conversation.InboundMessageRequest{
		MessageID: messageSid,
		FromPhone: from,
		ToPhone:   to,
		Body:      body,
	})
	if err != nil {
		h.logger.Error("inbound processing failed", "error", err, "message_sid", messageSid)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if resp.Dropped {
		h.logger.Debug("twilio inbound dropped", "to", to)
	}

	// The reply goes out through the messenger, not the TwiML response.
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

// TwilioStatusWebhook handles POST /webhooks/twilio/status delivery reports.
func (h *Handler) TwilioStatusWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := handlerTracer.Start(r.Context(), "messaging.twilio.status")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	h.recordStatus(ctx, r.FormValue("MessageSid"), r.FormValue("MessageStatus"))
	w.WriteHeader(http.StatusOK)
}

// TwilioVoiceWebhook handles POST /webhooks/twilio/voice. An unanswered or
// failed call is the missed-call trigger.
func (h *Handler) TwilioVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := handlerTracer.Start(r.Context(), "messaging.twilio.voice")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	status := r.FormValue("DialCallStatus")
	if status == "" {
		status = r.FormValue("CallStatus")
	}
	span.SetAttributes(attribute.String("frontdesk.call_status", status))

	if !isMissedCallStatus(status) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(emptyTwiML))
		return
	}

	caller := NormalizeE164(r.FormValue("From"))
	businessPhone := NormalizeE164(r.FormValue("To"))
	if caller == "" || businessPhone == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if _, err := h.processor.HandleMissedCall(ctx, conversation.MissedCallRequest{
		BusinessPhone: businessPhone,
		CallerPhone:   caller,
	}); err != nil {
		h.logger.Error("missed call processing failed", "error", err, "to", businessPhone)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

type missedCallPayload struct {
	BusinessPhone string `json:"business_phone"`
	CallerPhone   string `json:"caller_phone"`
}

// MissedCallWebhook handles POST /webhooks/missed-call, the gateway-agnostic
// trigger used by voice providers that pre-normalize their events.
func (h *Handler) MissedCallWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := handlerTracer.Start(r.Context(), "messaging.missed_call.webhook")
	defer span.End()

	var payload missedCallPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	businessPhone := NormalizeE164(payload.BusinessPhone)
	caller := NormalizeE164(payload.CallerPhone)
	if businessPhone == "" || caller == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	resp, err := h.processor.HandleMissedCall(ctx, conversation.MissedCallRequest{
		BusinessPhone: businessPhone,
		CallerPhone:   caller,
	})
	if err != nil {
		h.logger.Error("missed call processing failed", "error", err, "to", businessPhone)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) dispatchInbound(ctx context.Context, w http.ResponseWriter, req conversation.InboundMessageRequest) {
	resp, err := h.processor.HandleInbound(ctx, req)
	if err != nil {
		if errors.Is(err, conversation.ErrDispatcherClosed) {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("inbound processing failed", "error", err, "message_id", req.MessageID)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if resp.Dropped {
		h.logger.Debug("inbound dropped", "to", req.ToPhone)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) recordStatus(ctx context.Context, providerMessageID, status string) {
	if h.statuses == nil || providerMessageID == "" || status == "" {
		return
	}
	if err := h.statuses.HandleDeliveryStatus(ctx, providerMessageID, status); err != nil {
		h.logger.Error("failed to record delivery status",
			"error", err, "provider_message_id", providerMessageID)
	}
}

func isMissedCallStatus(status string) bool {
	switch strings.ToLower(status) {
	case "no-answer", "busy", "failed":
		return true
	}
	return false
}
