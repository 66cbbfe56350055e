// Package messaging is the gateway boundary: webhook decoding for inbound
// events and outbound SMS delivery via Telnyx or Twilio.
package messaging

import "strings"

// NormalizeE164 ensures the value begins with + and only contains digits
// afterward.
func NormalizeE164(value string) string {
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
