package conversation

import "strings"

// Unsubscribe keywords recognized as a terminal control message. The whole
// trimmed body must match; "please stop texting me" is a normal turn.
var optOutKeywords = map[string]struct{}{
	"stop":        {},
	"unsubscribe": {},
	"cancel":      {},
	"quit":        {},
}

// IsOptOut reports whether the inbound body is an unsubscribe request.
func IsOptOut(body string) bool {
	_, ok := optOutKeywords[strings.ToLower(strings.TrimSpace(body))]
	return ok
}
