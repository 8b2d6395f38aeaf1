package conversations

import (
	"context"
	"fmt"
	"time"

	"github.com/ent0n29/receptionist/internal/session"
)

// EndReason records why a call was finalized.
type EndReason string

const (
	EndNormal         EndReason = "normal_end"
	EndTimeoutCleanup EndReason = "timeout_cleanup"
	EndNoAudioTimeout EndReason = "no_audio_timeout"
	EndManualCleanup  EndReason = "manual_cleanup"
	EndTest           EndReason = "test"
)

func (r EndReason) Valid() bool {
	switch r {
	case EndNormal, EndTimeoutCleanup, EndNoAudioTimeout, EndManualCleanup, EndTest:
		return true
	}
	return false
}

// Record is the persisted form of a finished call.
type Record struct {
	ID              string         `json:"id"`
	CallID          string         `json:"call_id"`
	OwnerID         string         `json:"owner_id"`
	CalledNumber    string         `json:"called_number"`
	CallerNumber    string         `json:"caller_number"`
	BusinessName    string         `json:"business_name,omitempty"`
	Transcript      []session.Turn `json:"transcript"`
	Turns           int            `json:"turns"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         time.Time      `json:"ended_at"`
	DurationSeconds int64          `json:"duration_seconds"`
	EndReason       EndReason      `json:"end_reason"`
}

func (r Record) validate() error {
	if r.CallID == "" {
		return fmt.Errorf("record call_id is required")
	}
	if !r.EndReason.Valid() {
		return fmt.Errorf("record end_reason %q is invalid", r.EndReason)
	}
	return nil
}

// Store persists finished conversations.
type Store interface {
	Append(ctx context.Context, record Record) error
	// ListByOwner returns up to limit records, most recently started first.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Record, error)
	Close() error
}
