package conversation

import "context"

// OutboundReply is the command handed to the messaging gateway.
type OutboundReply struct {
	ToPhone   string
	FromPhone string
	Body      string
}

// SendResult carries the provider's identifiers back for persistence on the
// message row.
type SendResult struct {
	ProviderMessageID string
	Status            string
}

// ReplyMessenger delivers outbound SMS. Implementations live in
// internal/messaging.
type ReplyMessenger interface {
	Send(ctx context.Context, reply OutboundReply) (SendResult, error)
}
