package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frontdeskhq/callback-platform/internal/business"
	"github.com/frontdeskhq/callback-platform/internal/conversation"
	"github.com/frontdeskhq/callback-platform/internal/http/handlers"
	"github.com/frontdeskhq/callback-platform/internal/messaging"
	"github.com/frontdeskhq/callback-platform/internal/scheduling"
	"github.com/frontdeskhq/callback-platform/internal/suppression"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

type noopProcessor struct{}

func (noopProcessor) HandleMissedCall(ctx context.Context, req conversation.MissedCallRequest) (*conversation.Response, error) {
	return &conversation.Response{}, nil
}

func (noopProcessor) HandleInbound(ctx context.Context, req conversation.InboundMessageRequest) (*conversation.Response, error) {
	return &conversation.Response{}, nil
}

type noopScheduler struct{}

func (noopScheduler) ListAvailableSlots(ctx context.Context, biz *business.Business, from, to time.Time) (scheduling.SlotList, error) {
	return scheduling.SlotList{HadWindows: true}, nil
}

func (noopScheduler) CreateBooking(ctx context.Context, biz *business.Business, slotStart time.Time, req scheduling.BookingRequest) (*scheduling.Appointment, error) {
	return &scheduling.Appointment{ID: "appt-1", Status: scheduling.StatusConfirmed}, nil
}

type noopSuppressions struct{}

func (noopSuppressions) ListRecords(ctx context.Context, businessID string, limit int) ([]suppression.Record, error) {
	return nil, nil
}

type noopConversations struct{}

func (noopConversations) ListByBusiness(ctx context.Context, businessID string, limit int) ([]conversation.Conversation, error) {
	return nil, nil
}

func (noopConversations) GetByID(ctx context.Context, id string) (*conversation.Conversation, error) {
	return nil, conversation.ErrConversationNotFound
}

func (noopConversations) GetMessages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.Default()
	repo := business.NewInMemoryRepository()
	repo.Put(&business.Business{ID: "biz-1", Slug: "lakeside-dental", Name: "Lakeside Dental", Phone: "+15550100"})

	cfg := &Config{
		Logger:           logger,
		MessagingHandler: messaging.NewHandler(noopProcessor{}, nil, logger),
		BookingHandler:   handlers.NewBookingHandler(repo, noopScheduler{}, logger),
		AdminHandler:     handlers.NewAdminHandler(noopSuppressions{}, noopConversations{}, logger),
		AdminJWTSecret:   "secret",
	}
	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterMissedCallWebhook(t *testing.T) {
	router := newTestRouter(t)

	body := `{"business_phone":"+15550100","caller_phone":"+15550199"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/missed-call", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterBookingSlots(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/book/lakeside-dental/slots", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
}

func TestRouterAdminRequiresJWT(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/businesses/biz-1/conversations", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterAdminWithToken(t *testing.T) {
	router := newTestRouter(t)

	claims := jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/businesses/biz-1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
}
