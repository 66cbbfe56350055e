package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/frontdeskhq/callback-platform/cmd/mainconfig"
	"github.com/frontdeskhq/callback-platform/internal/api/router"
	"github.com/frontdeskhq/callback-platform/internal/business"
	"github.com/frontdeskhq/callback-platform/internal/calendar"
	appconfig "github.com/frontdeskhq/callback-platform/internal/config"
	"github.com/frontdeskhq/callback-platform/internal/conversation"
	"github.com/frontdeskhq/callback-platform/internal/http/handlers"
	"github.com/frontdeskhq/callback-platform/internal/messaging"
	"github.com/frontdeskhq/callback-platform/internal/notify"
	"github.com/frontdeskhq/callback-platform/internal/observability/metrics"
	"github.com/frontdeskhq/callback-platform/internal/scheduling"
	"github.com/frontdeskhq/callback-platform/internal/suppression"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting callback-platform API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(registry)

	businesses := business.NewPostgresRepository(pool)
	suppressionStore := suppression.NewStore(pool)

	suppressor := suppression.NewEngine(
		suppressionStore,
		suppression.NewRedisCooldownStore(redisClient, cfg.CooldownWindow),
		engineMetrics,
		logger,
	)

	var cal scheduling.Calendar
	if cfg.GoogleCalendarCredentialsJSON != "" {
		gcal, err := calendar.NewGoogleCalendar(ctx, cfg.GoogleCalendarCredentialsJSON)
		if err != nil {
			logger.Error("failed to initialize google calendar, continuing without", "error", err)
		} else {
			cal = gcal
		}
	}
	scheduler := scheduling.NewService(
		scheduling.NewPostgresAppointmentStore(pool),
		cal,
		engineMetrics,
		logger,
		cfg.CalendarTimeout,
	)

	convStore := conversation.NewPostgresStore(pool)
	sessions := conversation.NewSessionManager(convStore, conversation.SessionConfig{
		Window:          cfg.ConversationWindow,
		MessageCap:      cfg.MessageCap,
		DuplicateWindow: cfg.DuplicateWindow,
	}, logger)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	llm, model, closeLLM, err := buildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	defer closeLLM()

	messenger, smsProvider, reason := messaging.BuildReplyMessenger(messaging.ProviderSelectionConfig{
		Preference:       cfg.SMSProvider,
		TelnyxAPIKey:     cfg.TelnyxAPIKey,
		TelnyxProfileID:  cfg.TelnyxMessagingProfileID,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
	}, logger)
	if messenger == nil {
		logger.Error("no SMS provider available", "reason", reason)
		os.Exit(1)
	}
	logger.Info("sms provider selected", "provider", smsProvider)

	var emailSender notify.EmailSender = notify.NewStubEmailSender(logger)
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	}
	notifier := notify.NewService(emailSender, logger)

	engine := conversation.NewEngine(
		businesses,
		sessions,
		convStore,
		suppressor,
		llm,
		scheduler,
		messenger,
		notifier,
		engineMetrics,
		logger,
		conversation.EngineConfig{
			AITimeout:    cfg.AITimeout,
			HistoryLimit: cfg.HistoryLimit,
			Model:        model,
			OptOutReply:  cfg.OptOutReply,
		},
	)

	dispatcherOpts := []conversation.DispatcherOption{
		conversation.WithWorkerCount(cfg.WorkerCount),
	}
	var dispatcher *conversation.Dispatcher
	if cfg.UseMemoryQueue || cfg.JobQueueURL == "" {
		if cfg.JobQueueURL == "" && !cfg.UseMemoryQueue {
			logger.Warn("JOB_QUEUE_URL not set, falling back to in-memory queue")
		}
		dispatcher = conversation.NewDispatcher(engine, conversation.NewMemoryQueue(64), logger, dispatcherOpts...)
	} else {
		dispatcher = conversation.NewDispatcher(engine,
			conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.JobQueueURL), logger, dispatcherOpts...)
	}

	messagingHandler := messaging.NewHandler(dispatcher, engine, logger)
	bookingHandler := handlers.NewBookingHandler(businesses, scheduler, logger)
	adminHandler := handlers.NewAdminHandler(suppressionStore, convStore, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		MessagingHandler:   messagingHandler,
		BookingHandler:     bookingHandler,
		AdminHandler:       adminHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AdminJWTSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		BookingRateLimit:   5,
		BookingRateBurst:   20,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}

// buildLLMClient selects the completion backend. Gemini is the default; when
// Bedrock is also configured it backs up Gemini through the fallback client.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (conversation.LLMClient, string, func(), error) {
	noop := func() {}

	var bedrock *conversation.BedrockLLMClient
	if cfg.BedrockModelID != "" {
		bedrock = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	var gemini *conversation.GeminiLLMClient
	if cfg.GeminiAPIKey != "" {
		g, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, "", noop, fmt.Errorf("gemini client: %w", err)
		}
		gemini = g
	}

	switch cfg.LLMProvider {
	case "bedrock":
		if bedrock == nil {
			return nil, "", noop, fmt.Errorf("LLM_PROVIDER=bedrock but BEDROCK_MODEL_ID is not set")
		}
		return bedrock, cfg.BedrockModelID, noop, nil
	default:
		if gemini == nil {
			return nil, "", noop, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		closeGemini := func() { _ = gemini.Close() }
		if bedrock != nil {
			logger.Info("bedrock configured as LLM fallback", "model", cfg.BedrockModelID)
			return conversation.NewFallbackLLMClient(gemini, bedrock, logger), cfg.GeminiModel, closeGemini, nil
		}
		return gemini, cfg.GeminiModel, closeGemini, nil
	}
}
