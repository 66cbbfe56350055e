package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/frontdeskhq/callback-platform/internal/http/handlers"
	httpmiddleware "github.com/frontdeskhq/callback-platform/internal/http/middleware"
	"github.com/frontdeskhq/callback-platform/internal/messaging"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger           *logging.Logger
	MessagingHandler *messaging.Handler
	BookingHandler   *handlers.BookingHandler
	AdminHandler     *handlers.AdminHandler
	MetricsHandler   http.Handler

	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// Public booking page rate limit, requests/sec per IP. Zero disables.
	BookingRateLimit float64
	BookingRateBurst int
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Gateway webhooks. These must always be reachable without auth.
	if cfg.MessagingHandler != nil {
		r.Route("/webhooks", func(hooks chi.Router) {
			hooks.Post("/telnyx", cfg.MessagingHandler.TelnyxWebhook)
			hooks.Post("/twilio", cfg.MessagingHandler.TwilioWebhook)
			hooks.Post("/twilio/status", cfg.MessagingHandler.TwilioStatusWebhook)
			hooks.Post("/twilio/voice", cfg.MessagingHandler.TwilioVoiceWebhook)
			hooks.Post("/missed-call", cfg.MessagingHandler.MissedCallWebhook)
		})
	}

	// Public booking pages, slug-addressed.
	if cfg.BookingHandler != nil {
		r.Route("/book/{slug}", func(book chi.Router) {
			if cfg.BookingRateLimit > 0 {
				burst := cfg.BookingRateBurst
				if burst < 1 {
					burst = 10
				}
				book.Use(httpmiddleware.RateLimit(cfg.BookingRateLimit, burst))
			}
			book.Get("/slots", cfg.BookingHandler.ListSlots)
			book.Post("/appointments", cfg.BookingHandler.CreateAppointment)
		})
	}

	// Operator endpoints, JWT-guarded.
	if cfg.AdminHandler != nil && cfg.AdminJWTSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))
			admin.Get("/businesses/{businessID}/suppressions", cfg.AdminHandler.SuppressionReport)
			admin.Get("/businesses/{businessID}/conversations", cfg.AdminHandler.ListConversations)
			admin.Get("/conversations/{conversationID}", cfg.AdminHandler.GetConversation)
		})
	}

	return r
}
