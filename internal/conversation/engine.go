package conversation

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/frontdeskhq/callback-platform/internal/business"
	"github.com/frontdeskhq/callback-platform/internal/directive"
	"github.com/frontdeskhq/callback-platform/internal/observability/metrics"
	"github.com/frontdeskhq/callback-platform/internal/scheduling"
	"github.com/frontdeskhq/callback-platform/internal/suppression"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

var tracer = otel.Tracer("frontdesk.internal.conversation")

// MissedCallRequest triggers the recovery outreach for one unanswered call.
type MissedCallRequest struct {
	BusinessPhone string `json:"business_phone"`
	CallerPhone   string `json:"caller_phone"`
}

// InboundMessageRequest is one decoded webhook message from the gateway.
type InboundMessageRequest struct {
	MessageID string `json:"message_id"`
	FromPhone string `json:"from_phone"`
	ToPhone   string `json:"to_phone"`
	Body      string `json:"body"`
}

// Response reports what a turn produced. Dropped and Suppressed turns send
// nothing; both are normal outcomes, not errors.
type Response struct {
	ConversationID    string `json:"conversation_id,omitempty"`
	Body              string `json:"body,omitempty"`
	Suppressed        bool   `json:"suppressed,omitempty"`
	SuppressionReason string `json:"suppression_reason,omitempty"`
	Dropped           bool   `json:"dropped,omitempty"`
}

// Processor is the engine surface the dispatcher routes jobs to.
type Processor interface {
	HandleMissedCall(ctx context.Context, req MissedCallRequest) (*Response, error)
	HandleInbound(ctx context.Context, req InboundMessageRequest) (*Response, error)
}

// Suppressor decides whether the missed-call outreach may go out at all.
// *suppression.Engine satisfies it.
type Suppressor interface {
	ShouldSuppress(ctx context.Context, biz *business.Business, callerPhone string, now time.Time) (suppression.Decision, error)
	MarkOutreach(ctx context.Context, businessID, callerPhone string)
}

// Booker allocates appointments for BOOK commands. *scheduling.Service
// satisfies it.
type Booker interface {
	CreateBooking(ctx context.Context, biz *business.Business, slotStart time.Time, req scheduling.BookingRequest) (*scheduling.Appointment, error)
}

// EscalationNotifier alerts the business owner when a caller needs a human.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, biz *business.Business, conv *Conversation, reason string) error
}

// EngineConfig carries the per-turn tuning knobs.
type EngineConfig struct {
	// AITimeout bounds the completion call. A timed-out call is never
	// retried; the caller gets FallbackReply instead.
	AITimeout    time.Duration
	HistoryLimit int
	Model        string
	MaxTokens    int32
	Temperature  float32

	OptOutReply   string
	FallbackReply string
	ClosingReply  string
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.AITimeout <= 0 {
		c.AITimeout = 20 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 40
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 512
	}
	if c.OptOutReply == "" {
		c.OptOutReply = "You've been unsubscribed and won't receive further messages."
	}
	if c.FallbackReply == "" {
		c.FallbackReply = "Thanks for your message! We'll get back to you shortly."
	}
	if c.ClosingReply == "" {
		c.ClosingReply = "Thanks for texting with us! Please call us directly to continue."
	}
	return c
}

// Engine is the per-turn coordinator: it resolves the business, runs
// suppression on missed calls, manages the session, calls the model, parses
// commands out of the reply, applies their side effects, and emits the
// outbound message.
type Engine struct {
	businesses business.Repository
	sessions   *SessionManager
	store      Store
	suppressor Suppressor
	llm        LLMClient
	booker     Booker
	messenger  ReplyMessenger
	notifier   EscalationNotifier
	metrics    *metrics.EngineMetrics
	logger     *logging.Logger
	cfg        EngineConfig

	now func() time.Time
}

var _ Processor = (*Engine)(nil)

// NewEngine wires the response orchestrator. notifier and metrics may be nil.
func NewEngine(
	businesses business.Repository,
	sessions *SessionManager,
	store Store,
	suppressor Suppressor,
	llm LLMClient,
	booker Booker,
	messenger ReplyMessenger,
	notifier EscalationNotifier,
	m *metrics.EngineMetrics,
	logger *logging.Logger,
	cfg EngineConfig,
) *Engine {
	if businesses == nil {
		panic("conversation: business repository required")
	}
	if sessions == nil {
		panic("conversation: session manager required")
	}
	if store == nil {
		panic("conversation: store required")
	}
	if suppressor == nil {
		panic("conversation: suppressor required")
	}
	if llm == nil {
		panic("conversation: llm client required")
	}
	if messenger == nil {
		panic("conversation: messenger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		businesses: businesses,
		sessions:   sessions,
		store:      store,
		suppressor: suppressor,
		llm:        llm,
		booker:     booker,
		messenger:  messenger,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
}

// HandleMissedCall runs the suppression check and, when allowed, opens (or
// reuses) the conversation and sends the greeting. Suppression runs only
// here, never on later inbound replies.
func (e *Engine) HandleMissedCall(ctx context.Context, req MissedCallRequest) (*Response, error) {
	ctx, span := tracer.Start(ctx, "conversation.missed_call")
	defer span.End()

	biz, err := e.businesses.GetByPhone(ctx, req.BusinessPhone)
	if err != nil {
		if err == business.ErrBusinessNotFound {
			e.logger.Debug("missed call for unknown number", "to_phone", req.BusinessPhone)
			e.metrics.ObserveInbound("missed_call", "dropped")
			return &Response{Dropped: true}, nil
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("frontdesk.business_id", biz.ID))

	decision, err := e.suppressor.ShouldSuppress(ctx, biz, req.CallerPhone, e.now())
	if err != nil {
		return nil, err
	}
	if decision.Suppress {
		e.metrics.ObserveInbound("missed_call", "suppressed")
		return &Response{Suppressed: true, SuppressionReason: string(decision.Reason)}, nil
	}

	conv, created, err := e.sessions.GetOrCreateActive(ctx, biz.ID, req.CallerPhone)
	if err != nil {
		return nil, err
	}
	if !created {
		// A second missed call inside the window rides the existing thread.
		e.metrics.ObserveInbound("missed_call", "reused")
		return &Response{ConversationID: conv.ID}, nil
	}

	greeting := Greeting(biz)
	if err := e.deliver(ctx, biz, conv, req.CallerPhone, greeting); err != nil {
		return nil, err
	}
	e.suppressor.MarkOutreach(ctx, biz.ID, req.CallerPhone)
	e.metrics.ObserveInbound("missed_call", "engaged")
	return &Response{ConversationID: conv.ID, Body: greeting}, nil
}

// HandleInbound processes one caller reply. Unknown numbers and messages with
// no live conversation are acknowledged and dropped.
func (e *Engine) HandleInbound(ctx context.Context, req InboundMessageRequest) (*Response, error) {
	ctx, span := tracer.Start(ctx, "conversation.inbound")
	defer span.End()

	biz, err := e.businesses.GetByPhone(ctx, req.ToPhone)
	if err != nil {
		if err == business.ErrBusinessNotFound {
			e.logger.Debug("inbound for unknown number", "to_phone", req.ToPhone)
			e.metrics.ObserveInbound("message", "dropped")
			return &Response{Dropped: true}, nil
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("frontdesk.business_id", biz.ID))

	// Inbound replies attach to the conversation the missed call opened; an
	// unprompted text with no thread in the window is dropped.
	conv, err := e.sessions.FindCurrent(ctx, biz.ID, req.FromPhone)
	if err != nil {
		if err == ErrConversationNotFound {
			e.metrics.ObserveInbound("message", "dropped")
			return &Response{Dropped: true}, nil
		}
		return nil, err
	}
	if conv.Status.Terminal() {
		e.metrics.ObserveInbound("message", "closed")
		return &Response{ConversationID: conv.ID, Dropped: true}, nil
	}

	if IsOptOut(req.Body) {
		return e.handleOptOut(ctx, biz, conv, req)
	}

	res, err := e.sessions.RecordInbound(ctx, conv, req.Body, req.MessageID)
	if err != nil {
		return nil, err
	}
	if res.Duplicate {
		e.metrics.ObserveInbound("message", "duplicate")
		return &Response{ConversationID: conv.ID}, nil
	}
	if res.CapReached {
		e.metrics.ObserveInbound("message", "cap_reached")
		if err := e.deliver(ctx, biz, conv, req.FromPhone, e.cfg.ClosingReply); err != nil {
			return nil, err
		}
		return &Response{ConversationID: conv.ID, Body: e.cfg.ClosingReply}, nil
	}

	reply, directives := e.complete(ctx, biz, conv, req.Body)

	// The conversation may have been closed while the model was thinking
	// (cap hit by a concurrent message, opt-out). A late completion must not
	// apply side effects or send a reply to a closed thread.
	current, err := e.store.GetByID(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		e.logger.Info("discarding late completion for closed conversation",
			"conversation_id", conv.ID, "status", string(current.Status))
		return &Response{ConversationID: conv.ID}, nil
	}

	reply = e.applyDirectives(ctx, biz, current, directives, reply)
	if strings.TrimSpace(reply) == "" {
		reply = e.cfg.FallbackReply
	}
	if err := e.deliver(ctx, biz, conv, req.FromPhone, reply); err != nil {
		return nil, err
	}
	e.metrics.ObserveInbound("message", "replied")
	return &Response{ConversationID: conv.ID, Body: reply}, nil
}

// HandleDeliveryStatus records a provider delivery report.
func (e *Engine) HandleDeliveryStatus(ctx context.Context, providerMessageID, status string) error {
	return e.store.UpdateDeliveryStatus(ctx, providerMessageID, status)
}

func (e *Engine) handleOptOut(ctx context.Context, biz *business.Business, conv *Conversation, req InboundMessageRequest) (*Response, error) {
	// The control message still lands in the transcript, but the AI never
	// sees it.
	if _, err := e.sessions.RecordInbound(ctx, conv, req.Body, req.MessageID); err != nil {
		return nil, err
	}
	if _, err := e.sessions.Close(ctx, conv.ID, StatusCompleted); err != nil {
		return nil, err
	}
	if err := e.deliver(ctx, biz, conv, req.FromPhone, e.cfg.OptOutReply); err != nil {
		return nil, err
	}
	e.metrics.ObserveInbound("message", "opt_out")
	e.logger.Info("caller opted out", "conversation_id", conv.ID)
	return &Response{ConversationID: conv.ID, Body: e.cfg.OptOutReply}, nil
}

// complete runs the model with a bounded timeout and parses commands out of
// the reply. Failure or timeout yields the fixed fallback and no commands;
// retrying would risk two replies for one inbound message.
func (e *Engine) complete(ctx context.Context, biz *business.Business, conv *Conversation, latest string) (string, []directive.Directive) {
	history, err := e.sessions.History(ctx, conv.ID, e.cfg.HistoryLimit)
	if err != nil {
		e.logger.Error("failed to load history", "error", err, "conversation_id", conv.ID)
		return e.cfg.FallbackReply, nil
	}

	msgs := make([]ChatMessage, 0, len(history))
	for _, m := range history {
		role := ChatRoleUser
		if m.Direction == DirectionOutbound {
			role = ChatRoleAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: m.Content})
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != ChatRoleUser {
		msgs = append(msgs, ChatMessage{Role: ChatRoleUser, Content: latest})
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.AITimeout)
	defer cancel()

	started := e.now()
	resp, err := e.llm.Complete(callCtx, LLMRequest{
		Model:       e.cfg.Model,
		System:      BuildSystemPrompt(biz, e.now()),
		Messages:    msgs,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	e.metrics.ObserveLLMLatency(e.cfg.Model, time.Since(started).Seconds())
	if err != nil {
		e.logger.Error("llm completion failed, using fallback",
			"error", err, "conversation_id", conv.ID)
		return e.cfg.FallbackReply, nil
	}

	clean, directives := directive.Extract(resp.Text)
	return clean, directives
}

// applyDirectives runs command side effects. Every status transition goes
// through the guarded active-only update, so a conversation that closed
// between the check and here simply absorbs no effect.
func (e *Engine) applyDirectives(ctx context.Context, biz *business.Business, conv *Conversation, directives []directive.Directive, reply string) string {
	for _, d := range directives {
		switch d.Kind {
		case directive.KindNameCaptured:
			if err := e.store.SetCallerNameIfActive(ctx, conv.ID, d.Name); err != nil {
				e.logger.Error("failed to record caller name", "error", err, "conversation_id", conv.ID)
			}
		case directive.KindBook:
			reply = e.applyBooking(ctx, biz, conv, d.Book, reply)
		case directive.KindEscalate:
			transitioned, err := e.sessions.Close(ctx, conv.ID, StatusNeedsReview)
			if err != nil {
				e.logger.Error("failed to escalate conversation", "error", err, "conversation_id", conv.ID)
				continue
			}
			if transitioned && e.notifier != nil {
				if err := e.notifier.NotifyEscalation(ctx, biz, conv, d.Reason); err != nil {
					e.logger.Error("escalation notify failed", "error", err, "conversation_id", conv.ID)
				}
			}
		}
	}
	return reply
}

func (e *Engine) applyBooking(ctx context.Context, biz *business.Business, conv *Conversation, book *directive.Booking, reply string) string {
	if book == nil {
		return reply
	}
	if e.booker == nil {
		e.logger.Error("book command with no scheduler configured", "conversation_id", conv.ID)
		return reply
	}

	slotStart, err := ParseLocalDatetime(book.Datetime, biz.Location())
	if err != nil {
		e.logger.Warn("book command with unparseable datetime",
			"error", err, "conversation_id", conv.ID)
		return reply
	}

	appt, err := e.booker.CreateBooking(ctx, biz, slotStart, scheduling.BookingRequest{
		ConversationID: conv.ID,
		CustomerName:   book.Name,
		CustomerPhone:  conv.CallerPhone,
		Service:        book.Service,
		Notes:          book.Notes,
	})
	if err != nil {
		// The conversation continues; the model will offer another time on
		// the next turn.
		e.logger.Warn("book command rejected",
			"error", err, "conversation_id", conv.ID, "requested_at", book.Datetime)
		switch {
		case err == scheduling.ErrSlotTaken:
			return reply + " Unfortunately that time was just taken. Would another time work?"
		case scheduling.IsValidation(err) || err == scheduling.ErrPastSlot:
			return reply
		default:
			return reply
		}
	}

	if _, err := e.sessions.Close(ctx, conv.ID, StatusAppointmentBooked); err != nil {
		e.logger.Error("failed to mark conversation booked", "error", err, "conversation_id", conv.ID)
	}
	if err := e.store.SetIntent(ctx, conv.ID, "booking", book.Service); err != nil {
		e.logger.Error("failed to record intent", "error", err, "conversation_id", conv.ID)
	}
	e.logger.Info("appointment booked from conversation",
		"conversation_id", conv.ID, "appointment_id", appt.ID, "scheduled_at", appt.ScheduledAt)
	return reply
}

// deliver sends the reply and appends it to the transcript with the
// provider's message id and status.
func (e *Engine) deliver(ctx context.Context, biz *business.Business, conv *Conversation, toPhone, body string) error {
	result, err := e.messenger.Send(ctx, OutboundReply{
		ToPhone:   toPhone,
		FromPhone: biz.Phone,
		Body:      body,
	})
	if err != nil {
		e.metrics.ObserveOutbound("failed")
		return err
	}
	e.metrics.ObserveOutbound("sent")
	return e.sessions.RecordOutbound(ctx, conv.ID, body, result.ProviderMessageID, result.Status)
}
