package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/receptionist/internal/conversations"
)

const (
	defaultConversationLimit = 10
	maxConversationLimit     = 100
)

type conversationsResponse struct {
	UserID        string                 `json:"user_id"`
	Count         int                    `json:"count"`
	Conversations []conversations.Record `json:"conversations"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	limit := defaultConversationLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxConversationLimit)
	}
	if s.deps.Records == nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", "conversation store not configured")
		return
	}

	recs, err := s.deps.Records.ListByOwner(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("list conversations failed", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "list_failed", "could not load conversations")
		return
	}
	if recs == nil {
		recs = []conversations.Record{}
	}
	respondJSON(w, http.StatusOK, conversationsResponse{
		UserID:        userID,
		Count:         len(recs),
		Conversations: recs,
	})
}
