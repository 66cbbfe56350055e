package conversation

import "errors"

var (
	// ErrConversationNotFound is returned when no conversation matches.
	ErrConversationNotFound = errors.New("conversation: not found")

	// ErrConversationClosed is returned when a turn targets a conversation
	// that already left the active state.
	ErrConversationClosed = errors.New("conversation: closed")

	// ErrDispatcherClosed indicates the dispatcher stopped accepting work.
	ErrDispatcherClosed = errors.New("conversation: dispatcher closed")
)
