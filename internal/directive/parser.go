package directive

import (
	"regexp"
	"strings"
)

var (
	// tagRe matches a well-formed directive tag: an upper-case tag name
	// followed by comma-separated key="value" pairs. Quoted values may
	// contain any character except an unescaped double quote, including
	// commas and closing brackets.
	tagRe = regexp.MustCompile(`\[([A-Z][A-Z_]*):((?:\s*,?\s*[A-Za-z_]+\s*=\s*"(?:[^"\\]|\\.)*")*)\s*\]`)

	// strayTagRe matches anything that still looks like a directive tag
	// after well-formed tags are removed. Malformed tags are stripped from
	// the delivered text but yield no directive.
	strayTagRe = regexp.MustCompile(`\[[A-Z][A-Z_]*:[^\]]*\]`)

	pairRe = regexp.MustCompile(`([A-Za-z_]+)\s*=\s*"((?:[^"\\]|\\.)*)"`)
)

// Extract splits an AI reply into the text to deliver and the typed directives
// embedded in it, in the order encountered. Unknown and malformed tags are
// stripped from the text without producing a directive. Extract is pure: no
// I/O, no clock.
func Extract(text string) (string, []Directive) {
	var directives []Directive

	clean := tagRe.ReplaceAllStringFunc(text, func(match string) string {
		sub := tagRe.FindStringSubmatch(match)
		if d, ok := parseTag(sub[1], sub[2]); ok {
			directives = append(directives, d)
		}
		return ""
	})

	clean = strayTagRe.ReplaceAllString(clean, "")

	return strings.TrimSpace(clean), directives
}

func parseTag(name, body string) (Directive, bool) {
	fields := map[string]string{}
	for _, pair := range pairRe.FindAllStringSubmatch(body, -1) {
		fields[strings.ToLower(pair[1])] = unescape(pair[2])
	}

	switch Kind(name) {
	case KindBook:
		book := &Booking{
			Name:     fields["name"],
			Service:  fields["service"],
			Datetime: fields["datetime"],
			Notes:    fields["notes"],
		}
		if book.Name == "" || book.Service == "" || book.Datetime == "" {
			return Directive{}, false
		}
		return Directive{Kind: KindBook, Book: book}, true
	case KindNameCaptured:
		if fields["name"] == "" {
			return Directive{}, false
		}
		return Directive{Kind: KindNameCaptured, Name: fields["name"]}, true
	case KindEscalate:
		if fields["reason"] == "" {
			return Directive{}, false
		}
		return Directive{Kind: KindEscalate, Reason: fields["reason"]}, true
	default:
		return Directive{}, false
	}
}

func unescape(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	escaped := false
	for _, r := range v {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	if escaped {
		b.WriteRune('\\')
	}
	return b.String()
}
