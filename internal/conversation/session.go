package conversation

import (
	"context"
	"time"

	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

// SessionConfig carries the tuning knobs for conversation lifecycle. Nothing
// here is hardcoded so tests and per-business tuning can override them.
type SessionConfig struct {
	// Window bounds how long an active conversation can be reused.
	Window time.Duration
	// MessageCap closes the conversation once the transcript reaches it.
	MessageCap int
	// DuplicateWindow treats identical inbound bodies within it as
	// retransmissions.
	DuplicateWindow time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Window <= 0 {
		c.Window = 72 * time.Hour
	}
	if c.MessageCap <= 0 {
		c.MessageCap = 20
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = 30 * time.Second
	}
	return c
}

// InboundResult reports what happened to one inbound message.
type InboundResult struct {
	// Duplicate means the body was a retransmission; nothing was stored and
	// no reply should be sent.
	Duplicate bool
	// CapReached means this message filled the transcript and the manager
	// closed the conversation. The caller sends the closing message and must
	// not invoke the AI.
	CapReached bool
	// MessageCount is the transcript size after the call.
	MessageCount int
}

// SessionManager owns conversation lifecycle: find-or-create, the message
// cap, and duplicate suppression. Per-key atomicity lives in the store; the
// manager adds the policy.
type SessionManager struct {
	store  Store
	cfg    SessionConfig
	logger *logging.Logger

	now func() time.Time
}

// NewSessionManager wires the session manager.
func NewSessionManager(store Store, cfg SessionConfig, logger *logging.Logger) *SessionManager {
	if store == nil {
		panic("conversation: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionManager{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// GetOrCreateActive returns the active conversation for the pair, creating
// one when none exists inside the window. The bool reports creation.
func (m *SessionManager) GetOrCreateActive(ctx context.Context, businessID, callerPhone string) (*Conversation, bool, error) {
	conv, created, err := m.store.GetOrCreateActive(ctx, businessID, callerPhone, m.now(), m.cfg.Window)
	if err != nil {
		return nil, false, err
	}
	if created {
		m.logger.Info("conversation started",
			"conversation_id", conv.ID, "business_id", businessID)
	}
	return conv, created, nil
}

// FindCurrent returns the newest conversation for the pair inside the window,
// whatever its status, or ErrConversationNotFound.
func (m *SessionManager) FindCurrent(ctx context.Context, businessID, callerPhone string) (*Conversation, error) {
	return m.store.FindRecent(ctx, businessID, callerPhone, m.now().Add(-m.cfg.Window))
}

// RecordInbound appends the inbound message, suppressing retransmissions and
// enforcing the message cap. When the cap is hit the conversation is closed
// here, before the caller decides what to send.
func (m *SessionManager) RecordInbound(ctx context.Context, conv *Conversation, body, providerMessageID string) (InboundResult, error) {
	inserted, count, err := m.store.InsertInboundIfNew(ctx, conv.ID, body, providerMessageID, m.now(), m.cfg.DuplicateWindow)
	if err != nil {
		return InboundResult{}, err
	}
	if !inserted {
		m.logger.Debug("duplicate inbound suppressed", "conversation_id", conv.ID)
		return InboundResult{Duplicate: true, MessageCount: conv.MessageCount}, nil
	}

	res := InboundResult{MessageCount: count}
	if count >= m.cfg.MessageCap {
		closed, err := m.store.UpdateStatusIfActive(ctx, conv.ID, StatusCompleted)
		if err != nil {
			return res, err
		}
		if closed {
			m.logger.Info("conversation closed at message cap",
				"conversation_id", conv.ID, "message_count", count)
		}
		res.CapReached = true
	}
	return res, nil
}

// RecordOutbound appends our reply to the transcript.
func (m *SessionManager) RecordOutbound(ctx context.Context, conversationID, body, providerMessageID, deliveryStatus string) error {
	_, err := m.store.AppendOutbound(ctx, conversationID, body, providerMessageID, deliveryStatus)
	return err
}

// Close transitions the conversation out of active. False means it was
// already closed.
func (m *SessionManager) Close(ctx context.Context, conversationID string, status Status) (bool, error) {
	return m.store.UpdateStatusIfActive(ctx, conversationID, status)
}

// History returns up to limit recent messages in chronological order.
func (m *SessionManager) History(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	return m.store.GetMessages(ctx, conversationID, limit)
}

// Config exposes the effective tuning values.
func (m *SessionManager) Config() SessionConfig {
	return m.cfg
}
