package suppression

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/frontdeskhq/callback-platform/internal/business"
	"github.com/frontdeskhq/callback-platform/internal/observability/metrics"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

var tracer = otel.Tracer("frontdesk.internal.suppression")

// PolicyStore answers block-list and contact-book questions and records
// suppression decisions.
type PolicyStore interface {
	IsBlocked(ctx context.Context, businessID, phone string) (bool, error)
	// ContactStatus reports whether the caller is a known contact and whether
	// they sit on the cooldown-bypass list.
	ContactStatus(ctx context.Context, businessID, phone string) (exists bool, bypassCooldown bool, err error)
	InsertRecord(ctx context.Context, rec Record) error
}

// CooldownStore tracks recent automated outreach per (business, caller).
type CooldownStore interface {
	InCooldown(ctx context.Context, businessID, phone string) (bool, error)
	MarkOutreach(ctx context.Context, businessID, phone string) error
}

// Engine decides, per missed-call event, whether automated outreach should be
// sent at all. It runs exactly once per missed call, never on replies inside
// an existing conversation.
type Engine struct {
	policies  PolicyStore
	cooldowns CooldownStore
	metrics   *metrics.EngineMetrics
	logger    *logging.Logger
}

// NewEngine wires the suppression engine.
func NewEngine(policies PolicyStore, cooldowns CooldownStore, m *metrics.EngineMetrics, logger *logging.Logger) *Engine {
	if policies == nil {
		panic("suppression: policy store required")
	}
	if cooldowns == nil {
		panic("suppression: cooldown store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{policies: policies, cooldowns: cooldowns, metrics: m, logger: logger}
}

// ShouldSuppress evaluates the policy checks in order, short-circuiting on the
// first match. Store failures fail open: a broken dependency must not silence
// outreach for every caller.
func (e *Engine) ShouldSuppress(ctx context.Context, biz *business.Business, callerPhone string, now time.Time) (Decision, error) {
	ctx, span := tracer.Start(ctx, "suppression.should_suppress")
	defer span.End()
	span.SetAttributes(attribute.String("frontdesk.business_id", biz.ID))

	blocked, err := e.policies.IsBlocked(ctx, biz.ID, callerPhone)
	if err != nil {
		span.RecordError(err)
		e.logger.Error("block list check failed", "error", err, "business_id", biz.ID)
	}
	if blocked {
		return e.suppress(ctx, biz.ID, callerPhone, ReasonBlocked, now), nil
	}

	isContact, bypassCooldown, err := e.policies.ContactStatus(ctx, biz.ID, callerPhone)
	if err != nil {
		span.RecordError(err)
		e.logger.Error("contact book check failed", "error", err, "business_id", biz.ID)
	}
	if isContact && !bypassCooldown {
		return e.suppress(ctx, biz.ID, callerPhone, ReasonExistingContact, now), nil
	}
	if bypassCooldown {
		return Decision{}, nil
	}

	inCooldown, err := e.cooldowns.InCooldown(ctx, biz.ID, callerPhone)
	if err != nil {
		span.RecordError(err)
		e.logger.Error("cooldown check failed", "error", err, "business_id", biz.ID)
	}
	if inCooldown {
		return e.suppress(ctx, biz.ID, callerPhone, ReasonCooldown, now), nil
	}

	return Decision{}, nil
}

// MarkOutreach records that an automated text-back was just sent, starting the
// cooldown window for the caller.
func (e *Engine) MarkOutreach(ctx context.Context, businessID, callerPhone string) {
	if err := e.cooldowns.MarkOutreach(ctx, businessID, callerPhone); err != nil {
		e.logger.Error("failed to mark outreach cooldown", "error", err, "business_id", businessID)
	}
}

func (e *Engine) suppress(ctx context.Context, businessID, phone string, reason Reason, now time.Time) Decision {
	rec := Record{
		BusinessID:  businessID,
		CallerPhone: phone,
		Reason:      reason,
		CreatedAt:   now,
	}
	if err := e.policies.InsertRecord(ctx, rec); err != nil {
		e.logger.Error("failed to record suppression", "error", err, "business_id", businessID, "reason", reason)
	}
	e.metrics.ObserveSuppression(string(reason))
	e.logger.Info("outreach suppressed", "business_id", businessID, "reason", reason)
	return Decision{Suppress: true, Reason: reason}
}
