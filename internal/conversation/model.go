// Package conversation owns the lifecycle of a caller and business text
// exchange: session management, per-turn orchestration, and the queue-backed
// dispatcher in front of both.
package conversation

import "time"

// Status is the conversation lifecycle state. Transitions are one-directional;
// nothing returns to active.
type Status string

const (
	StatusActive            Status = "active"
	StatusAppointmentBooked Status = "appointment_booked"
	StatusNeedsReview       Status = "needs_review"
	StatusCompleted         Status = "completed"
	StatusNoResponse        Status = "no_response"
)

// Terminal reports whether the status admits no further turns.
func (s Status) Terminal() bool {
	return s != StatusActive
}

// Direction distinguishes caller messages from our replies.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Conversation is one caller/business text exchange.
type Conversation struct {
	ID               string
	BusinessID       string
	CallerPhone      string
	CallerName       string
	Status           Status
	Intent           string
	ServiceRequested string
	Summary          string
	MessageCount     int
	CreatedAt        time.Time
	LastMessageAt    time.Time
}

// Message is one entry in a conversation transcript. Messages are append-only
// and ordered by creation time.
type Message struct {
	ID                string
	ConversationID    string
	Direction         Direction
	Content           string
	ProviderMessageID string
	DeliveryStatus    string
	CreatedAt         time.Time
}
