package policy

import (
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/receptionist/internal/session"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactTranscriptLeavesInputUntouched(t *testing.T) {
	now := time.Now()
	turns := []session.Turn{
		{Speaker: session.SpeakerAgent, Text: "How can I help?", At: now},
		{Speaker: session.SpeakerCaller, Text: "Call me back at 555-123-4567", At: now},
	}
	out, n := RedactTranscript(turns)
	if n != 1 {
		t.Fatalf("redacted lines = %d, want 1", n)
	}
	if out[1].Text != "Call me back at [REDACTED_PHONE]" {
		t.Fatalf("redacted text = %q", out[1].Text)
	}
	if turns[1].Text != "Call me back at 555-123-4567" {
		t.Fatalf("input mutated: %q", turns[1].Text)
	}
	if out[0].Speaker != session.SpeakerAgent || !out[0].At.Equal(now) {
		t.Fatalf("turn metadata lost: %+v", out[0])
	}
}

func TestMaskPhone(t *testing.T) {
	cases := map[string]string{
		"+15551234567": "*******4567",
		"123":          "***",
		"":             "",
	}
	for in, want := range cases {
		if got := MaskPhone(in); got != want {
			t.Fatalf("MaskPhone(%q) = %q, want %q", in, got, want)
		}
	}
}
