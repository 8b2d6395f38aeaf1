package session

import (
	"fmt"
	"strings"
	"time"
)

type Speaker string

const (
	SpeakerCaller Speaker = "caller"
	SpeakerAgent  Speaker = "agent"
)

// Turn is one transcript entry.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// VoiceSettings are the per-call synthesis parameters. A nil field or an
// empty VoiceID keeps the process default; an explicit zero or false
// overrides it.
type VoiceSettings struct {
	VoiceID         string   `json:"voice_id,omitempty"`
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Style           *float64 `json:"style,omitempty"`
	SpeakerBoost    *bool    `json:"use_speaker_boost,omitempty"`
}

// AgentConfig is the answering party's receptionist configuration. A copy is
// captured when a session is created and never refreshed mid-call.
type AgentConfig struct {
	Enabled            bool          `json:"enabled"`
	AgentName          string        `json:"name,omitempty"`
	BusinessName       string        `json:"business_name,omitempty"`
	Greeting           string        `json:"greeting,omitempty"`
	BusinessHours      string        `json:"business_hours,omitempty"`
	CustomInstructions string        `json:"custom_instructions,omitempty"`
	Voice              VoiceSettings `json:"voice_settings"`
}

const (
	DefaultBusinessName  = "our office"
	DefaultBusinessHours = "9:00 AM - 5:00 PM"
)

// DefaultAgentConfig is used when the called number has no configuration or
// the directory cannot be reached.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Enabled:       true,
		AgentName:     "AI Receptionist",
		BusinessName:  DefaultBusinessName,
		BusinessHours: DefaultBusinessHours,
	}
}

// OpeningLine returns the configured greeting, or one built from the business name.
func (c AgentConfig) OpeningLine() string {
	if g := strings.TrimSpace(c.Greeting); g != "" {
		return g
	}
	name := strings.TrimSpace(c.BusinessName)
	if name == "" {
		name = DefaultBusinessName
	}
	return fmt.Sprintf("Hello! Thank you for calling %s. How can I help you today?", name)
}

// CallSession is the in-memory state of one in-progress phone call.
type CallSession struct {
	CallID         string      `json:"call_id"`
	CalledNumber   string      `json:"called_number"`
	CallerNumber   string      `json:"caller_number"`
	Transcript     []Turn      `json:"transcript"`
	Config         AgentConfig `json:"config"`
	Turns          int         `json:"turns"`
	StartedAt      time.Time   `json:"started_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
}

func New(callID, calledNumber, callerNumber string, cfg AgentConfig, now time.Time) *CallSession {
	now = now.UTC()
	return &CallSession{
		CallID:         callID,
		CalledNumber:   calledNumber,
		CallerNumber:   callerNumber,
		Config:         cfg,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// Append adds a transcript entry. Entries are never removed or reordered.
func (s *CallSession) Append(speaker Speaker, text string, at time.Time) {
	s.Transcript = append(s.Transcript, Turn{Speaker: speaker, Text: text, At: at.UTC()})
}

// Touch records one processed webhook turn.
func (s *CallSession) Touch(now time.Time) {
	s.Turns++
	s.LastActivityAt = now.UTC()
}

// Window returns up to the last n transcript entries, oldest first.
func (s *CallSession) Window(n int) []Turn {
	if n <= 0 || len(s.Transcript) == 0 {
		return nil
	}
	if n > len(s.Transcript) {
		n = len(s.Transcript)
	}
	out := make([]Turn, n)
	copy(out, s.Transcript[len(s.Transcript)-n:])
	return out
}

// LastAgentLine returns the most recent agent entry, if any.
func (s *CallSession) LastAgentLine() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Speaker == SpeakerAgent {
			return s.Transcript[i].Text
		}
	}
	return ""
}

// Age reports how stale the session is under the given policy.
func (s *CallSession) Age(now time.Time, policy StalenessPolicy) time.Duration {
	ref := s.LastActivityAt
	if policy == StaleSinceStart || ref.IsZero() {
		ref = s.StartedAt
	}
	return now.Sub(ref)
}

func clone(s *CallSession) *CallSession {
	c := *s
	if s.Transcript != nil {
		c.Transcript = make([]Turn, len(s.Transcript))
		copy(c.Transcript, s.Transcript)
	}
	return &c
}
