// Package twiml builds the voice-markup documents returned to the
// telephony gateway on every call turn.
package twiml

import (
	"fmt"
	"strconv"

	twilio "github.com/twilio/twilio-go/twiml"
)

// ContentType is sent with every rendered document.
const ContentType = "text/xml; charset=utf-8"

// DefaultSayVoice is the gateway's built-in voice used for canned lines.
const DefaultSayVoice = "alice"

// Verb is one top-level instruction inside a Response.
type Verb interface {
	verb() string
	element() twilio.Element
}

type Say struct {
	Voice string
	Text  string
}

type Play struct {
	URL string
}

type Pause struct {
	Length int
}

// Gather collects caller speech and posts it to Action.
type Gather struct {
	Input         string
	Timeout       int
	SpeechTimeout string
	Action        string
	Method        string
}

type Hangup struct{}

func (Say) verb() string    { return "Say" }
func (Play) verb() string   { return "Play" }
func (Pause) verb() string  { return "Pause" }
func (Gather) verb() string { return "Gather" }
func (Hangup) verb() string { return "Hangup" }

func (v Say) element() twilio.Element {
	return &twilio.VoiceSay{Message: v.Text, Voice: v.Voice}
}

func (v Play) element() twilio.Element {
	return &twilio.VoicePlay{Url: v.URL}
}

func (v Pause) element() twilio.Element {
	p := &twilio.VoicePause{}
	if v.Length > 0 {
		p.Length = strconv.Itoa(v.Length)
	}
	return p
}

func (v Gather) element() twilio.Element {
	g := &twilio.VoiceGather{
		Input:         v.Input,
		SpeechTimeout: v.SpeechTimeout,
		Action:        v.Action,
		Method:        v.Method,
	}
	if v.Timeout > 0 {
		g.Timeout = strconv.Itoa(v.Timeout)
	}
	return g
}

func (Hangup) element() twilio.Element {
	return &twilio.VoiceHangup{}
}

// Response is an ordered list of verbs.
type Response struct {
	Verbs []Verb
}

func (r *Response) Say(voice, text string) *Response {
	r.Verbs = append(r.Verbs, Say{Voice: voice, Text: text})
	return r
}

func (r *Response) Play(url string) *Response {
	r.Verbs = append(r.Verbs, Play{URL: url})
	return r
}

func (r *Response) Pause(seconds int) *Response {
	r.Verbs = append(r.Verbs, Pause{Length: seconds})
	return r
}

func (r *Response) Gather(g Gather) *Response {
	r.Verbs = append(r.Verbs, g)
	return r
}

func (r *Response) Hangup() *Response {
	r.Verbs = append(r.Verbs, Hangup{})
	return r
}

// Terminal reports whether the document ends the call.
func (r Response) Terminal() bool {
	return len(r.Verbs) > 0 && r.Verbs[len(r.Verbs)-1].verb() == "Hangup"
}

// Has reports whether a verb with the given name is present.
func (r Response) Has(name string) bool {
	for _, v := range r.Verbs {
		if v.verb() == name {
			return true
		}
	}
	return false
}

// Render returns the full XML document including the declaration.
func (r Response) Render() ([]byte, error) {
	elems := make([]twilio.Element, 0, len(r.Verbs))
	for _, v := range r.Verbs {
		elems = append(elems, v.element())
	}
	doc, err := twilio.Voice(elems)
	if err != nil {
		return nil, fmt.Errorf("render voice response: %w", err)
	}
	return []byte(doc), nil
}
