package messaging

import (
	"context"
	"errors"

	"github.com/frontdeskhq/callback-platform/internal/conversation"
	"github.com/frontdeskhq/callback-platform/pkg/logging"
)

// FailoverMessenger attempts a primary send, then falls back to a secondary
// provider on error.
type FailoverMessenger struct {
	primary       conversation.ReplyMessenger
	secondary     conversation.ReplyMessenger
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverMessenger builds a failover messenger with named providers.
func NewFailoverMessenger(primary conversation.ReplyMessenger, primaryName string, secondary conversation.ReplyMessenger, secondaryName string, logger *logging.Logger) *FailoverMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverMessenger{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ conversation.ReplyMessenger = (*FailoverMessenger)(nil)

// Send tries the primary provider first, then the secondary on failure.
func (f *FailoverMessenger) Send(ctx context.Context, reply conversation.OutboundReply) (conversation.SendResult, error) {
	if f == nil || f.primary == nil {
		return conversation.SendResult{}, errors.New("messaging: failover primary sender not configured")
	}
	result, err := f.primary.Send(ctx, reply)
	if err == nil {
		return result, nil
	}
	if f.secondary == nil {
		return conversation.SendResult{}, err
	}

	f.logger.Warn("primary sms send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"error", err,
		"to", reply.ToPhone,
	)
	result, fallbackErr := f.secondary.Send(ctx, reply)
	if fallbackErr != nil {
		f.logger.Error("fallback sms send failed",
			"provider", f.secondaryName,
			"error", fallbackErr,
			"to", reply.ToPhone,
		)
		return conversation.SendResult{}, fallbackErr
	}
	return result, nil
}
