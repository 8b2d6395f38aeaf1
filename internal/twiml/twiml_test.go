package twiml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"testing"
)

type parsedVerb struct {
	Name  string
	Attrs map[string]string
	Text  string
}

// topLevel decodes the verbs directly under <Response> in document order.
func topLevel(t *testing.T, doc []byte) []parsedVerb {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(doc))
	var (
		out   []parsedVerb
		depth int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("document does not parse: %v\n%s", err, doc)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if el.Name.Local != "Response" {
					t.Fatalf("root = %q, want Response", el.Name.Local)
				}
				continue
			}
			if depth == 2 {
				v := parsedVerb{Name: el.Name.Local, Attrs: map[string]string{}}
				for _, a := range el.Attr {
					v.Attrs[a.Name.Local] = a.Value
				}
				out = append(out, v)
			}
		case xml.CharData:
			if depth == 2 && len(out) > 0 {
				out[len(out)-1].Text += string(el)
			}
		case xml.EndElement:
			depth--
		}
	}
	return out
}

func TestRenderContinueDocument(t *testing.T) {
	var r Response
	r.Play("https://example.test/api/audio/voice_CA1_1.mp3?a=1&b=2").
		Gather(Gather{Input: "speech", Timeout: 5, SpeechTimeout: "2", Action: "/api/voice-webhook", Method: "POST"}).
		Say(DefaultSayVoice, "I didn't hear anything.")

	out, err := r.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.HasPrefix(string(out), "<?xml") {
		t.Fatalf("missing declaration: %s", out)
	}

	verbs := topLevel(t, out)
	if len(verbs) != 3 {
		t.Fatalf("verbs = %+v", verbs)
	}
	if verbs[0].Name != "Play" || verbs[0].Text != "https://example.test/api/audio/voice_CA1_1.mp3?a=1&b=2" {
		t.Fatalf("play = %+v", verbs[0])
	}
	g := verbs[1]
	if g.Name != "Gather" || g.Attrs["input"] != "speech" || g.Attrs["timeout"] != "5" ||
		g.Attrs["speechTimeout"] != "2" || g.Attrs["action"] != "/api/voice-webhook" || g.Attrs["method"] != "POST" {
		t.Fatalf("gather = %+v", g)
	}
	if verbs[2].Name != "Say" || verbs[2].Attrs["voice"] != "alice" || verbs[2].Text != "I didn't hear anything." {
		t.Fatalf("say = %+v", verbs[2])
	}
	if r.Terminal() {
		t.Fatalf("Terminal() = true for a gather document")
	}
}

func TestRenderTerminalDocument(t *testing.T) {
	var r Response
	r.Pause(1).Hangup()
	out, err := r.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	verbs := topLevel(t, out)
	if len(verbs) != 2 || verbs[0].Name != "Pause" || verbs[0].Attrs["length"] != "1" || verbs[1].Name != "Hangup" {
		t.Fatalf("verbs = %+v", verbs)
	}
	if !r.Terminal() || !r.Has("Pause") || r.Has("Play") {
		t.Fatalf("Terminal/Has mismatch for %s", out)
	}
}

func TestRenderEmptyResponse(t *testing.T) {
	out, err := (Response{}).Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if verbs := topLevel(t, out); len(verbs) != 0 {
		t.Fatalf("verbs = %+v", verbs)
	}
}
