package policy

import (
	"regexp"
	"strings"

	"github.com/ent0n29/receptionist/internal/session"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks email addresses, card numbers and phone numbers.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Cards first, otherwise the phone pattern eats them.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactTranscript returns a copy of turns with PII masked in every line.
// The input slice is not modified.
func RedactTranscript(turns []session.Turn) (out []session.Turn, redactedLines int) {
	out = make([]session.Turn, len(turns))
	for i, t := range turns {
		text, changed := RedactPII(t.Text)
		if changed {
			redactedLines++
		}
		t.Text = text
		out[i] = t
	}
	return out, redactedLines
}

// MaskPhone keeps the last four digits of a phone number for log output.
func MaskPhone(number string) string {
	var digits strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) <= 4 {
		return strings.Repeat("*", len(d))
	}
	return strings.Repeat("*", len(d)-4) + d[len(d)-4:]
}
