package httpapi

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/receptionist/internal/call"
	"github.com/ent0n29/receptionist/internal/staging"
	"github.com/ent0n29/receptionist/internal/twiml"
)

// Last-resort document when rendering itself fails.
const fallbackTwiML = `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
	`<Response><Say voice="alice">` + call.ApologyLine + `</Say><Hangup></Hangup></Response>`

type webhookPayload struct {
	CalledNumber string `json:"To"`
	CallerNumber string `json:"From"`
	CallID       string `json:"CallSid"`
	Utterance    string `json:"SpeechResult"`
}

// handleVoiceWebhook answers every gateway request with 200 and a TwiML
// document; the gateway cannot do anything useful with an error status.
func (s *Server) handleVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := parseWebhook(w, r)
	if err != nil {
		s.logger.Warn("unparseable webhook payload", "error", err)
		var doc twiml.Response
		doc.Say(twiml.DefaultSayVoice, call.MalformedLine).Hangup()
		s.writeTwiML(w, doc)
		return
	}
	if s.deps.Turns == nil {
		var doc twiml.Response
		doc.Say(twiml.DefaultSayVoice, call.ApologyLine).Hangup()
		s.writeTwiML(w, doc)
		return
	}

	res := s.deps.Turns.HandleTurn(r.Context(), call.Turn{
		CallID:       payload.CallID,
		CalledNumber: payload.CalledNumber,
		CallerNumber: payload.CallerNumber,
		Utterance:    payload.Utterance,
		AudioBaseURL: s.publicBaseURL(r),
	})
	s.writeTwiML(w, res.Response)
}

func parseWebhook(w http.ResponseWriter, r *http.Request) (webhookPayload, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var p webhookPayload
		if err := decodeJSON(r, &p); err != nil && !errors.Is(err, errEmptyBody) {
			return webhookPayload{}, err
		}
		return p, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		return webhookPayload{}, err
	}
	return webhookPayload{
		CalledNumber: r.PostForm.Get("To"),
		CallerNumber: r.PostForm.Get("From"),
		CallID:       r.PostForm.Get("CallSid"),
		Utterance:    r.PostForm.Get("SpeechResult"),
	}, nil
}

func (s *Server) writeTwiML(w http.ResponseWriter, doc twiml.Response) {
	out, err := doc.Render()
	if err != nil {
		s.logger.Error("render twiml failed", "error", err)
		out = []byte(fallbackTwiML)
	}
	w.Header().Set("Content-Type", twiml.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// publicBaseURL is the origin the gateway should fetch staged audio from.
func (s *Server) publicBaseURL(r *http.Request) string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = strings.ToLower(strings.Split(proto, ",")[0])
	}
	host := r.Host
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = strings.Split(fwd, ",")[0]
	}
	return scheme + "://" + strings.TrimSpace(host)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if !staging.ValidFilename(name) {
		respondError(w, http.StatusBadRequest, "invalid_filename", "invalid audio file name")
		return
	}
	if s.deps.Audio == nil {
		respondError(w, http.StatusNotFound, "audio_not_found", "audio file not found")
		return
	}

	f, info, err := s.deps.Audio.Open(name)
	switch {
	case errors.Is(err, staging.ErrNotFound):
		respondError(w, http.StatusNotFound, "audio_not_found", "audio file not found")
		return
	case errors.Is(err, staging.ErrInvalidName):
		respondError(w, http.StatusBadRequest, "invalid_filename", "invalid audio file name")
		return
	case err != nil:
		s.logger.Error("open staged audio failed", "file", name, "error", err)
		s.deps.Audio.ScheduleDelete(name)
		respondError(w, http.StatusInternalServerError, "audio_unavailable", "audio file unavailable")
		return
	}
	defer s.deps.Audio.ScheduleDelete(name)
	defer f.Close()

	contentType := "audio/mpeg"
	if strings.EqualFold(filepath.Ext(name), ".wav") {
		contentType = "audio/wav"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeContent(w, r, name, info.ModTime(), f)
}
