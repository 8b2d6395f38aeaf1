package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/receptionist/internal/session"
	"github.com/ent0n29/receptionist/internal/voice"
)

const previewText = "Hello! This is a preview of your AI receptionist voice. How can I help you today?"

// Premade voices that read well over a phone line.
var recommendedVoiceIDs = []string{
	"EXAVITQu4vr4xnSDxMaL", // Sarah
	"cgSgspJ2msm6clMCkdW9", // Jessica
	"pFZP5JQG7iQjIQuC4Bku", // Lily
}

type listVoicesResponse struct {
	DefaultVoiceID string            `json:"default_voice_id"`
	Recommended    []voice.VoiceInfo `json:"recommended"`
	Voices         []voice.VoiceInfo `json:"voices"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	resp := listVoicesResponse{
		DefaultVoiceID: s.cfg.ElevenLabsTTSVoice,
		Recommended:    []voice.VoiceInfo{},
		Voices:         []voice.VoiceInfo{},
	}
	if s.deps.Voices == nil {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	voices, err := s.deps.Voices.ListVoices(ctx)
	if err != nil {
		s.logger.Warn("list voices failed", "error", err)
		respondError(w, http.StatusBadGateway, "voices_unavailable", err.Error())
		return
	}

	byID := make(map[string]voice.VoiceInfo, len(voices))
	for _, v := range voices {
		byID[v.VoiceID] = v
	}
	for _, id := range recommendedVoiceIDs {
		if v, ok := byID[id]; ok {
			resp.Recommended = append(resp.Recommended, v)
		}
	}
	if voices != nil {
		resp.Voices = voices
	}
	respondJSON(w, http.StatusOK, resp)
}

type testVoiceRequest struct {
	Text            string   `json:"text"`
	VoiceID         string   `json:"voice_id"`
	Stability       *float64 `json:"stability"`
	SimilarityBoost *float64 `json:"similarity_boost"`
	Style           *float64 `json:"style"`
	SpeakerBoost    *bool    `json:"use_speaker_boost"`
}

// handleTestVoice synthesizes a preview clip with the same pipeline and
// defaults used on live calls.
func (s *Server) handleTestVoice(w http.ResponseWriter, r *http.Request) {
	if s.deps.Voice == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "speech synthesis not configured")
		return
	}
	var req testVoiceRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = previewText
	}

	clip, err := s.deps.Voice.Synthesize(r.Context(), text, session.VoiceSettings{
		VoiceID:         strings.TrimSpace(req.VoiceID),
		Stability:       req.Stability,
		SimilarityBoost: req.SimilarityBoost,
		Style:           req.Style,
		SpeakerBoost:    req.SpeakerBoost,
	})
	switch {
	case errors.Is(err, voice.ErrEmptyText):
		respondError(w, http.StatusBadRequest, "empty_text", "text has nothing speakable")
		return
	case err != nil:
		s.metrics.ProviderError(s.deps.Voice.ProviderName(), voice.ErrorCode(err))
		respondError(w, http.StatusBadGateway, "tts_preview_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", clip.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	if f := strings.TrimSpace(clip.Format); f != "" {
		w.Header().Set("X-Audio-Format", f)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Data)
}
