// Package directive extracts structured commands that the language model
// embeds in its free-text replies. The bracket syntax is the wire format the
// model is prompted to produce; nothing downstream ever re-parses raw text.
package directive

// Kind identifies a directive variant.
type Kind string

const (
	// KindBook asks the scheduler to create an appointment.
	KindBook Kind = "BOOK"
	// KindNameCaptured records the caller's name on the conversation.
	KindNameCaptured Kind = "NAME_CAPTURED"
	// KindEscalate flags the conversation for human review.
	KindEscalate Kind = "ESCALATE"
)

// Booking carries the BOOK payload. Datetime is the raw local datetime string
// as produced by the model; the caller parses it in the business timezone.
type Booking struct {
	Name     string
	Service  string
	Datetime string
	Notes    string
}

// Directive is a tagged union: Kind selects which payload field is set.
type Directive struct {
	Kind   Kind
	Book   *Booking // KindBook
	Name   string   // KindNameCaptured
	Reason string   // KindEscalate
}
