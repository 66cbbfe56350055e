package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/frontdeskhq/callback-platform/internal/conversation"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

var telnyxTracer = otel.Tracer("frontdesk.internal.messaging.telnyx")

// TelnyxSender posts SMS messages using Telnyx's V2 API.
type TelnyxSender struct {
	apiKey             string
	messagingProfileID string
	endpoint           string
	httpClient         *http.Client
	logger             *logging.Logger
}

// NewTelnyxSender builds a sender for the Telnyx V2 API.
func NewTelnyxSender(apiKey, messagingProfileID string, logger *logging.Logger) *TelnyxSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		apiKey:             apiKey,
		messagingProfileID: messagingProfileID,
		endpoint:           "https://api.telnyx.com/v2/messages",
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		logger:             logger,
	}
}

var _ conversation.ReplyMessenger = (*TelnyxSender)(nil)

// Send dispatches a single SMS, retrying transient failures.
func (s *TelnyxSender) Send(ctx context.Context, msg conversation.OutboundReply) (conversation.SendResult, error) {
	if s.apiKey == "" {
		return conversation.SendResult{}, errors.New("messaging: telnyx api key missing")
	}
	if msg.ToPhone == "" || msg.FromPhone == "" {
		return conversation.SendResult{}, errors.New("messaging: to and from required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return conversation.SendResult{}, errors.New("messaging: body required")
	}

	ctx, span := telnyxTracer.Start(ctx, "messaging.telnyx.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("frontdesk.to", msg.ToPhone),
		attribute.String("frontdesk.from", msg.FromPhone),
	)

	payload := map[string]any{
		"from": msg.FromPhone,
		"to":   msg.ToPhone,
		"text": msg.Body,
	}
	if s.messagingProfileID != "" {
		payload["messaging_profile_id"] = s.messagingProfileID
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return conversation.SendResult{}, fmt.Errorf("messaging: marshal telnyx payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					Data struct {
						ID     string `json:"id"`
						Status string `json:"status"`
					} `json:"data"`
				}
				_ = json.Unmarshal(body, &parsed)
				s.logger.Info("telnyx sms sent", "to", msg.ToPhone, "from", msg.FromPhone)
				return conversation.SendResult{
					ProviderMessageID: parsed.Data.ID,
					Status:            parsed.Data.Status,
				}, nil
			}
			lastErr = fmt.Errorf("telnyx send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			// Only rate limits are worth retrying among 4xx.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < 3 {
			time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}

	span.RecordError(lastErr)
	s.logger.Error("failed to send telnyx sms", "error", lastErr, "to", msg.ToPhone)
	return conversation.SendResult{}, lastErr
}
