package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/frontdeskhq/callback-platform/internal/business"
	"github.com/frontdeskhq/callback-platform/internal/conversation"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

// Service emails business owners when a conversation escalates to a human.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates an escalation notification service. A nil email sender
// downgrades notifications to log lines.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

var _ conversation.EscalationNotifier = (*Service)(nil)

// NotifyEscalation sends the owner an email describing why the AI handed off.
func (s *Service) NotifyEscalation(ctx context.Context, biz *business.Business, conv *conversation.Conversation, reason string) error {
	if biz == nil || conv == nil {
		return fmt.Errorf("notify: escalation requires a business and conversation")
	}
	if s.email == nil || biz.OwnerEmail == "" {
		s.logger.Warn("escalation not emailed",
			"business_id", biz.ID,
			"conversation_id", conv.ID,
			"reason", reason,
			"owner_email_set", biz.OwnerEmail != "")
		return nil
	}

	caller := conv.CallerName
	if caller == "" {
		caller = conv.CallerPhone
	}
	if reason == "" {
		reason = "The caller asked for a human."
	}

	subject := fmt.Sprintf("Caller needs you: %s", caller)
	body := fmt.Sprintf(`%s needs a human follow-up.

Caller: %s
Phone: %s
Reason: %s%s

The AI has stopped replying to this caller. Please call or text them back directly.

— %s front desk`, caller, caller, conv.CallerPhone, reason, s.formatContext(conv), biz.Name)

	msg := EmailMessage{
		To:      biz.OwnerEmail,
		ToName:  biz.Name,
		Subject: subject,
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: escalation email: %w", err)
	}
	s.logger.Info("escalation email sent",
		"business_id", biz.ID,
		"conversation_id", conv.ID,
		"to", biz.OwnerEmail)
	return nil
}

func (s *Service) formatContext(conv *conversation.Conversation) string {
	var parts []string
	if conv.ServiceRequested != "" {
		parts = append(parts, fmt.Sprintf("Service interest: %s", conv.ServiceRequested))
	}
	if conv.Summary != "" {
		parts = append(parts, fmt.Sprintf("Summary: %s", conv.Summary))
	}
	if len(parts) == 0 {
		return ""
	}
	return "\n" + strings.Join(parts, "\n")
}
