package suppression

import "time"

// Reason explains why an automated outreach was withheld.
type Reason string

const (
	ReasonBlocked         Reason = "blocked"
	ReasonExistingContact Reason = "existing_contact"
	ReasonCooldown        Reason = "cooldown"
)

// Decision is a first-class outcome, not an error: suppressed outreach is
// normal operation and is recorded for reporting.
type Decision struct {
	Suppress bool
	Reason   Reason
}

// Record is the append-only log row written for every suppression.
type Record struct {
	BusinessID  string
	CallerPhone string
	Reason      Reason
	CreatedAt   time.Time
}
