package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ent0n29/receptionist/internal/call"
	"github.com/ent0n29/receptionist/internal/config"
	"github.com/ent0n29/receptionist/internal/conversations"
	"github.com/ent0n29/receptionist/internal/observability"
	"github.com/ent0n29/receptionist/internal/session"
	"github.com/ent0n29/receptionist/internal/voice"
)

type TurnHandler interface {
	HandleTurn(ctx context.Context, in call.Turn) call.Result
}

// AudioFiles serves staged clips back to the telephony gateway.
type AudioFiles interface {
	Open(name string) (*os.File, os.FileInfo, error)
	ScheduleDelete(name string)
}

type UserDirectory interface {
	LookupByCalledNumber(ctx context.Context, number string) (session.AgentConfig, error)
	ResolveOwnerID(ctx context.Context, number string) (string, error)
}

type VoiceLister interface {
	ListVoices(ctx context.Context) ([]voice.VoiceInfo, error)
}

type SessionCleaner interface {
	CleanupOlderThan(ctx context.Context, age time.Duration, reason conversations.EndReason) []conversations.Record
}

type Deps struct {
	Turns     TurnHandler
	Sessions  *session.Store
	Cleaner   SessionCleaner
	Records   conversations.Store
	Directory UserDirectory
	Audio     AudioFiles
	Voices    VoiceLister
	Voice     call.Synthesizer
	// BrainProvider and RecordStore name the active backends for health output.
	BrainProvider string
	RecordStore   string
	Metrics       *observability.Metrics
	Logger        *slog.Logger
}

type Server struct {
	cfg  config.Config
	deps Deps

	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		deps:    deps,
		metrics: deps.Metrics,
		logger:  logger.With("component", "httpapi"),
		now:     time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/perf/latency", s.handlePerfLatency)

		r.Post("/voice-webhook", s.handleVoiceWebhook)
		r.Get("/audio/{filename}", s.handleAudio)

		r.Get("/voices", s.handleListVoices)
		r.Post("/test-voice", s.handleTestVoice)

		r.Get("/conversations/{userId}", s.handleListConversations)

		if s.cfg.DebugEndpoints {
			r.Route("/debug", func(r chi.Router) {
				r.Get("/active-conversations", s.handleActiveConversations)
				r.Post("/cleanup", s.handleCleanup)
				r.Post("/test-conversation/{userId}", s.handleTestConversation)
				r.Get("/check-user/{phoneNumber}", s.handleCheckUser)
			})
		}
	})

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	active := 0
	if s.deps.Sessions != nil {
		active = s.deps.Sessions.Count()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"service":         "ai-receptionist",
		"timestamp":       s.now().UTC().Format(time.RFC3339),
		"active_sessions": active,
		"brain_provider":  s.brainProvider(),
		"voice_provider":  s.voiceProvider(),
		"record_store":    s.recordStore(),
	})
}

func (s *Server) brainProvider() string {
	if p := strings.TrimSpace(s.deps.BrainProvider); p != "" {
		return p
	}
	return "none"
}

func (s *Server) voiceProvider() string {
	if s.deps.Voice == nil {
		return "none"
	}
	return s.deps.Voice.ProviderName()
}

func (s *Server) recordStore() string {
	if st := strings.TrimSpace(s.deps.RecordStore); st != "" {
		return st
	}
	return "none"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
