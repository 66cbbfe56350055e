package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/frontdeskhq/callback-platform/internal/conversation"
	"github.com/frontdeskhq/callback-platform/internal/suppression"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

const (
	defaultAdminPageSize = 50
	maxAdminPageSize     = 200
)

// SuppressionReporter exposes the suppression audit log for reporting.
type SuppressionReporter interface {
	ListRecords(ctx context.Context, businessID string, limit int) ([]suppression.Record, error)
}

// ConversationReader is the read-only slice of the conversation store the
// admin surface needs.
type ConversationReader interface {
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]conversation.Conversation, error)
	GetByID(ctx context.Context, id string) (*conversation.Conversation, error)
	GetMessages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error)
}

// AdminHandler serves the JWT-guarded operator endpoints.
type AdminHandler struct {
	suppressions  SuppressionReporter
	conversations ConversationReader
	logger        *logging.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(suppressions SuppressionReporter, conversations ConversationReader, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{
		suppressions:  suppressions,
		conversations: conversations,
		logger:        logger,
	}
}

type suppressionRecordItem struct {
	CallerPhone string    `json:"caller_phone"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

type suppressionReportResponse struct {
	BusinessID string                  `json:"business_id"`
	Records    []suppressionRecordItem `json:"records"`
}

// SuppressionReport handles GET /admin/businesses/{businessID}/suppressions.
func (h *AdminHandler) SuppressionReport(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if businessID == "" {
		writeError(w, http.StatusBadRequest, "missing_business_id", "missing business id")
		return
	}
	if h.suppressions == nil {
		writeError(w, http.StatusNotImplemented, "unavailable", "suppression reporting not configured")
		return
	}

	records, err := h.suppressions.ListRecords(r.Context(), businessID, pageSize(r))
	if err != nil {
		h.logger.Error("suppression report failed", "error", err, "business_id", businessID)
		writeError(w, http.StatusInternalServerError, "internal", "failed to load suppression records")
		return
	}

	items := make([]suppressionRecordItem, 0, len(records))
	for _, rec := range records {
		items = append(items, suppressionRecordItem{
			CallerPhone: rec.CallerPhone,
			Reason:      string(rec.Reason),
			CreatedAt:   rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, suppressionReportResponse{BusinessID: businessID, Records: items})
}

type conversationListItem struct {
	ID               string    `json:"id"`
	CallerPhone      string    `json:"caller_phone"`
	CallerName       string    `json:"caller_name,omitempty"`
	Status           string    `json:"status"`
	Intent           string    `json:"intent,omitempty"`
	ServiceRequested string    `json:"service_requested,omitempty"`
	MessageCount     int       `json:"message_count"`
	CreatedAt        time.Time `json:"created_at"`
	LastMessageAt    time.Time `json:"last_message_at"`
}

type conversationsListResponse struct {
	BusinessID    string                 `json:"business_id"`
	Conversations []conversationListItem `json:"conversations"`
}

// ListConversations handles GET /admin/businesses/{businessID}/conversations.
func (h *AdminHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "businessID")
	if businessID == "" {
		writeError(w, http.StatusBadRequest, "missing_business_id", "missing business id")
		return
	}

	convs, err := h.conversations.ListByBusiness(r.Context(), businessID, pageSize(r))
	if err != nil {
		h.logger.Error("conversation listing failed", "error", err, "business_id", businessID)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list conversations")
		return
	}

	items := make([]conversationListItem, 0, len(convs))
	for _, conv := range convs {
		items = append(items, conversationListItem{
			ID:               conv.ID,
			CallerPhone:      conv.CallerPhone,
			CallerName:       conv.CallerName,
			Status:           string(conv.Status),
			Intent:           conv.Intent,
			ServiceRequested: conv.ServiceRequested,
			MessageCount:     conv.MessageCount,
			CreatedAt:        conv.CreatedAt,
			LastMessageAt:    conv.LastMessageAt,
		})
	}
	writeJSON(w, http.StatusOK, conversationsListResponse{BusinessID: businessID, Conversations: items})
}

type messageItem struct {
	ID             string    `json:"id"`
	Direction      string    `json:"direction"`
	Content        string    `json:"content"`
	DeliveryStatus string    `json:"delivery_status,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type conversationDetailResponse struct {
	conversationListItem
	Messages []messageItem `json:"messages"`
}

// GetConversation handles GET /admin/conversations/{conversationID}, returning
// the transcript in chronological order.
func (h *AdminHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, "missing_conversation_id", "missing conversation id")
		return
	}

	conv, err := h.conversations.GetByID(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "unknown_conversation", "conversation not found")
			return
		}
		h.logger.Error("conversation lookup failed", "error", err, "conversation_id", conversationID)
		writeError(w, http.StatusInternalServerError, "internal", "failed to load conversation")
		return
	}

	msgs, err := h.conversations.GetMessages(r.Context(), conversationID, maxAdminPageSize)
	if err != nil {
		h.logger.Error("transcript lookup failed", "error", err, "conversation_id", conversationID)
		writeError(w, http.StatusInternalServerError, "internal", "failed to load transcript")
		return
	}

	detail := conversationDetailResponse{
		conversationListItem: conversationListItem{
			ID:               conv.ID,
			CallerPhone:      conv.CallerPhone,
			CallerName:       conv.CallerName,
			Status:           string(conv.Status),
			Intent:           conv.Intent,
			ServiceRequested: conv.ServiceRequested,
			MessageCount:     conv.MessageCount,
			CreatedAt:        conv.CreatedAt,
			LastMessageAt:    conv.LastMessageAt,
		},
		Messages: make([]messageItem, 0, len(msgs)),
	}
	for _, msg := range msgs {
		detail.Messages = append(detail.Messages, messageItem{
			ID:             msg.ID,
			Direction:      string(msg.Direction),
			Content:        msg.Content,
			DeliveryStatus: msg.DeliveryStatus,
			CreatedAt:      msg.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, detail)
}

func pageSize(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		return defaultAdminPageSize
	}
	if limit > maxAdminPageSize {
		return maxAdminPageSize
	}
	return limit
}
