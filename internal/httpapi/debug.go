package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ent0n29/receptionist/internal/conversations"
	"github.com/ent0n29/receptionist/internal/directory"
	"github.com/ent0n29/receptionist/internal/policy"
	"github.com/ent0n29/receptionist/internal/session"
)

type activeConversation struct {
	CallID         string    `json:"call_id"`
	CalledNumber   string    `json:"called_number"`
	CallerNumber   string    `json:"caller_number"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	AgeSeconds     int64     `json:"age_seconds"`
	Turns          int       `json:"turns"`
}

func (s *Server) handleActiveConversations(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	out := []activeConversation{}
	if s.deps.Sessions != nil {
		for _, cs := range s.deps.Sessions.Snapshot() {
			out = append(out, activeConversation{
				CallID:         cs.CallID,
				CalledNumber:   policy.MaskPhone(cs.CalledNumber),
				CallerNumber:   policy.MaskPhone(cs.CallerNumber),
				StartedAt:      cs.StartedAt,
				LastActivityAt: cs.LastActivityAt,
				AgeSeconds:     int64(cs.Age(now, session.StaleSinceStart).Seconds()),
				Turns:          cs.Turns,
			})
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":         len(out),
		"conversations": out,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cleaner == nil {
		respondError(w, http.StatusServiceUnavailable, "cleanup_unavailable", "finalizer not configured")
		return
	}
	age := s.cfg.ManualCleanupAge
	if age <= 0 {
		age = 30 * time.Second
	}
	done := s.deps.Cleaner.CleanupOlderThan(r.Context(), age, conversations.EndManualCleanup)
	ids := make([]string, 0, len(done))
	for _, rec := range done {
		ids = append(ids, rec.CallID)
	}
	s.logger.Info("manual cleanup", "finalized", len(ids), "older_than", age.String())
	respondJSON(w, http.StatusOK, map[string]any{
		"cleaned":  len(ids),
		"call_ids": ids,
	})
}

// handleTestConversation stores a synthetic record so the dashboard has
// something to render.
func (s *Server) handleTestConversation(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	if s.deps.Records == nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", "conversation store not configured")
		return
	}

	ended := s.now().UTC()
	started := ended.Add(-2 * time.Minute)
	rec := conversations.Record{
		ID:           uuid.NewString(),
		CallID:       "test_" + uuid.NewString(),
		OwnerID:      userID,
		CalledNumber: "+15551234567",
		CallerNumber: "+15559876543",
		BusinessName: session.DefaultBusinessName,
		Transcript: []session.Turn{
			{Speaker: session.SpeakerAgent, Text: "Hello! Thank you for calling. How can I help you today?", At: started},
			{Speaker: session.SpeakerCaller, Text: "Hi, I'd like to schedule an appointment.", At: started.Add(10 * time.Second)},
			{Speaker: session.SpeakerAgent, Text: "I'd be happy to help. What day works best for you?", At: started.Add(15 * time.Second)},
		},
		Turns:           2,
		StartedAt:       started,
		EndedAt:         ended,
		DurationSeconds: int64(ended.Sub(started).Seconds()),
		EndReason:       conversations.EndTest,
	}
	if err := s.deps.Records.Append(r.Context(), rec); err != nil {
		s.logger.Error("store test conversation failed", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "store_failed", "could not store test conversation")
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

type checkUserResponse struct {
	PhoneNumber string               `json:"phone_number"`
	Normalized  string               `json:"normalized"`
	Registered  bool                 `json:"registered"`
	OwnerID     string               `json:"owner_id"`
	Config      *session.AgentConfig `json:"config,omitempty"`
	Error       string               `json:"error,omitempty"`
}

func (s *Server) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(chi.URLParam(r, "phoneNumber"))
	if number == "" {
		respondError(w, http.StatusBadRequest, "invalid_phone_number", "missing phone number")
		return
	}
	if s.deps.Directory == nil {
		respondError(w, http.StatusServiceUnavailable, "directory_unavailable", "user directory not configured")
		return
	}

	out := checkUserResponse{
		PhoneNumber: number,
		Normalized:  directory.NormalizeNumber(number),
		OwnerID:     directory.UnknownOwnerID,
	}
	cfg, err := s.deps.Directory.LookupByCalledNumber(r.Context(), number)
	switch {
	case errors.Is(err, directory.ErrNotFound):
	case err != nil:
		out.Error = err.Error()
	default:
		out.Registered = true
		out.Config = &cfg
	}
	if owner, err := s.deps.Directory.ResolveOwnerID(r.Context(), number); err == nil && owner != "" {
		out.OwnerID = owner
	}
	respondJSON(w, http.StatusOK, out)
}
