package conversation

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for the datetime value of a BOOK command. The model is
// told to use the first one; the rest absorb common drift.
var datetimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 3:04 PM",
	"2006-01-02 15:04:05",
}

// ParseLocalDatetime parses a BOOK datetime in the business's timezone.
func ParseLocalDatetime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("conversation: empty datetime")
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("conversation: unparseable datetime %q", value)
}
