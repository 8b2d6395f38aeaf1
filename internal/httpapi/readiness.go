package httpapi

import (
	"net/http"
	"os"
	"strings"
)

type readinessCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type readinessResponse struct {
	Status        string           `json:"status"`
	BrainProvider string           `json:"brain_provider"`
	VoiceProvider string           `json:"voice_provider"`
	RecordStore   string           `json:"record_store"`
	Checks        []readinessCheck `json:"checks"`
}

// handleReady reports 503 only when a check is in error; warnings still
// accept calls in a degraded mode.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	checks := make([]readinessCheck, 0, 6)
	checks = append(checks, s.brainCheck(), s.voiceCheck(), s.recordStoreCheck(), s.stagingCheck())
	if s.deps.Turns == nil {
		checks = append(checks, readinessCheck{
			ID:     "call_handler",
			Status: "error",
			Label:  "Call handler",
			Detail: "not configured",
		})
	}
	if s.cfg.PublicBaseURL == "" {
		checks = append(checks, readinessCheck{
			ID:     "public_base_url",
			Status: "warn",
			Label:  "Public base URL",
			Detail: "derived from request headers",
			Fix:    "Set APP_PUBLIC_BASE_URL to the URL the telephony gateway reaches this service on.",
		})
	}

	status, code := "ready", http.StatusOK
	for _, c := range checks {
		if c.Status == "error" {
			status, code = "not_ready", http.StatusServiceUnavailable
			break
		}
	}
	respondJSON(w, code, readinessResponse{
		Status:        status,
		BrainProvider: s.brainProvider(),
		VoiceProvider: s.voiceProvider(),
		RecordStore:   s.recordStore(),
		Checks:        checks,
	})
}

func (s *Server) brainCheck() readinessCheck {
	switch provider := s.brainProvider(); provider {
	case "none":
		return readinessCheck{ID: "brain", Status: "error", Label: "Response generator", Detail: "not configured"}
	case "mock":
		return readinessCheck{
			ID:     "brain",
			Status: "warn",
			Label:  "Response generator",
			Detail: "mock replies",
			Fix:    "Set OPENAI_API_KEY or BRAIN_HTTP_URL for real replies.",
		}
	default:
		return readinessCheck{ID: "brain", Status: "ok", Label: "Response generator", Detail: provider}
	}
}

func (s *Server) voiceCheck() readinessCheck {
	switch provider := s.voiceProvider(); provider {
	case "none":
		return readinessCheck{
			ID:     "voice",
			Status: "warn",
			Label:  "Speech synthesis",
			Detail: "not configured; calls will run without audio",
		}
	case "mock":
		return readinessCheck{
			ID:     "voice",
			Status: "warn",
			Label:  "Speech synthesis",
			Detail: "mock clips are silent",
			Fix:    "Set ELEVENLABS_API_KEY for real speech.",
		}
	default:
		return readinessCheck{ID: "voice", Status: "ok", Label: "Speech synthesis", Detail: provider}
	}
}

func (s *Server) recordStoreCheck() readinessCheck {
	switch store := s.recordStore(); store {
	case "postgres":
		return readinessCheck{ID: "record_store", Status: "ok", Label: "Conversation persistence", Detail: store}
	case "in-memory":
		return readinessCheck{
			ID:     "record_store",
			Status: "warn",
			Label:  "Conversation persistence",
			Detail: "in-memory only",
			Fix:    "Set DATABASE_URL to keep conversations across restarts.",
		}
	default:
		return readinessCheck{ID: "record_store", Status: "warn", Label: "Conversation persistence", Detail: store}
	}
}

func (s *Server) stagingCheck() readinessCheck {
	dir := strings.TrimSpace(s.cfg.AudioStagingDir)
	if dir == "" {
		return readinessCheck{ID: "audio_staging", Status: "warn", Label: "Audio staging", Detail: "no directory configured"}
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return readinessCheck{
			ID:     "audio_staging",
			Status: "error",
			Label:  "Audio staging",
			Detail: dir + " is not a directory",
			Fix:    "Set AUDIO_STAGING_DIR to a writable directory.",
		}
	}
	return readinessCheck{ID: "audio_staging", Status: "ok", Label: "Audio staging", Detail: dir}
}
