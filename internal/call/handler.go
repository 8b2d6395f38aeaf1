// Package call drives one phone call turn by turn. Each webhook invocation is
// an independent request; continuity lives in the session store.
package call

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ent0n29/receptionist/internal/brain"
	"github.com/ent0n29/receptionist/internal/conversations"
	"github.com/ent0n29/receptionist/internal/directory"
	"github.com/ent0n29/receptionist/internal/observability"
	"github.com/ent0n29/receptionist/internal/policy"
	"github.com/ent0n29/receptionist/internal/session"
	"github.com/ent0n29/receptionist/internal/twiml"
	"github.com/ent0n29/receptionist/internal/voice"
)

// Lines spoken by the gateway's own voice when no synthesized clip is used.
const (
	MalformedLine   = "Thank you for calling. Please try again later."
	UnavailableLine = "Thank you for calling. We are currently unavailable. Please try again later."
	NoInputLine     = "I didn't hear anything. Please call back if you need assistance. Goodbye!"
	ApologyLine     = "I apologize, but I'm experiencing technical difficulties. Please try again later."
)

// Outcome labels a processed turn for logs and metrics.
type Outcome string

const (
	OutcomeGreeting    Outcome = "greeting"
	OutcomeContinue    Outcome = "continue"
	OutcomeDegraded    Outcome = "degraded"
	OutcomeEnd         Outcome = "end"
	OutcomeNoAudioEnd  Outcome = "no_audio_end"
	OutcomeMalformed   Outcome = "malformed"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeError       Outcome = "error"
)

type Generator interface {
	ProviderName() string
	Generate(ctx context.Context, req brain.GenerateRequest) brain.GenerateResult
}

type Synthesizer interface {
	ProviderName() string
	Synthesize(ctx context.Context, text string, vs session.VoiceSettings) (voice.Audio, error)
}

type AudioStager interface {
	Stage(callID string, clip voice.Audio) (string, error)
}

type ConfigLookup interface {
	LookupByCalledNumber(ctx context.Context, number string) (session.AgentConfig, error)
}

// Turn is one webhook invocation from the telephony gateway.
type Turn struct {
	CallID       string
	CalledNumber string
	CallerNumber string
	// Utterance is the transcribed caller speech. Empty on the opening turn.
	Utterance string
	// AudioBaseURL is the public origin staged clips are fetched from.
	AudioBaseURL string
}

type Result struct {
	Response  twiml.Response
	Outcome   Outcome
	EndReason conversations.EndReason
}

type Options struct {
	// ContextTurns bounds the transcript window handed to the generator.
	ContextTurns  int
	LookupTimeout time.Duration
	GatherAction  string
	GatherTimeout int
	SpeechTimeout string
	SayVoice      string
}

func DefaultOptions() Options {
	return Options{
		ContextTurns:  4,
		LookupTimeout: 2 * time.Second,
		GatherAction:  "/api/voice-webhook",
		GatherTimeout: 5,
		SpeechTimeout: "2",
		SayVoice:      twiml.DefaultSayVoice,
	}
}

type Deps struct {
	Sessions  *session.Store
	Configs   ConfigLookup
	Generator Generator
	Voice     Synthesizer
	Stager    AudioStager
	Finalizer *Finalizer
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

type Handler struct {
	sessions  *session.Store
	configs   ConfigLookup
	generator Generator
	voice     Synthesizer
	stager    AudioStager
	finalizer *Finalizer
	metrics   *observability.Metrics
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

func NewHandler(deps Deps, opts Options) *Handler {
	def := DefaultOptions()
	if opts.ContextTurns < 0 {
		opts.ContextTurns = 0
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = def.LookupTimeout
	}
	if opts.GatherAction == "" {
		opts.GatherAction = def.GatherAction
	}
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = def.GatherTimeout
	}
	if opts.SpeechTimeout == "" {
		opts.SpeechTimeout = def.SpeechTimeout
	}
	if opts.SayVoice == "" {
		opts.SayVoice = def.SayVoice
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:  deps.Sessions,
		configs:   deps.Configs,
		generator: deps.Generator,
		voice:     deps.Voice,
		stager:    deps.Stager,
		finalizer: deps.Finalizer,
		metrics:   deps.Metrics,
		logger:    logger.With("component", "call"),
		opts:      opts,
		now:       time.Now,
	}
}

// HandleTurn processes one webhook invocation. It always returns a valid
// document; failures of collaborators degrade the reply instead.
func (h *Handler) HandleTurn(ctx context.Context, in Turn) (res Result) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("turn panicked", "call_id", in.CallID, "panic", r, "stack", string(debug.Stack()))
			res = Result{Response: h.apology(), Outcome: OutcomeError}
		}
		h.metrics.TurnCompleted(string(res.Outcome), time.Since(started))
	}()

	in.CallID = strings.TrimSpace(in.CallID)
	in.CalledNumber = strings.TrimSpace(in.CalledNumber)
	in.CallerNumber = strings.TrimSpace(in.CallerNumber)
	if in.CallID == "" || in.CalledNumber == "" || in.CallerNumber == "" {
		h.logger.Warn("webhook missing required fields",
			"call_id", in.CallID,
			"has_called", in.CalledNumber != "",
			"has_caller", in.CallerNumber != "",
		)
		var doc twiml.Response
		doc.Say(h.opts.SayVoice, MalformedLine).Hangup()
		return Result{Response: doc, Outcome: OutcomeMalformed}
	}

	logger := h.logger.With("call_id", in.CallID, "caller", policy.MaskPhone(in.CallerNumber))

	cfg := h.resolveConfig(ctx, in.CalledNumber, logger)
	if !cfg.Enabled {
		logger.Info("receptionist disabled for called number")
		var doc twiml.Response
		doc.Say(h.opts.SayVoice, UnavailableLine).Hangup()
		res := Result{Response: doc, Outcome: OutcomeUnavailable}
		// A call already in progress ends here rather than waiting for the reaper.
		if live, ok := h.sessions.Get(in.CallID); ok {
			live.Touch(h.now())
			h.finish(ctx, live, false, conversations.EndNormal, logger)
			res.EndReason = conversations.EndNormal
		}
		return res
	}

	s, found := h.sessions.Get(in.CallID)
	if !found {
		s = session.New(in.CallID, in.CalledNumber, in.CallerNumber, cfg, h.now())
		h.metrics.SessionStarted()
		logger.Info("call started", "business", cfg.BusinessName)
	}
	firstTurn := s.Turns == 0
	utterance := strings.TrimSpace(in.Utterance)

	reply, endCall := h.respond(ctx, s, utterance, logger)
	s.Touch(h.now())

	audioURL := h.stageReply(ctx, s, reply, in.AudioBaseURL, logger)

	var doc twiml.Response
	switch {
	case endCall:
		h.playOrPause(&doc, audioURL).Hangup()
		h.finish(ctx, s, !found, conversations.EndNormal, logger)
		return Result{Response: doc, Outcome: OutcomeEnd, EndReason: conversations.EndNormal}

	case audioURL == "" && !firstTurn:
		// A second silent turn would loop the caller through empty gathers.
		doc.Pause(1).Hangup()
		h.finish(ctx, s, !found, conversations.EndNoAudioTimeout, logger)
		return Result{Response: doc, Outcome: OutcomeNoAudioEnd, EndReason: conversations.EndNoAudioTimeout}

	case audioURL == "":
		doc.Pause(1).Gather(h.gather()).Say(h.opts.SayVoice, NoInputLine).Hangup()
		h.store(s, !found, logger)
		return Result{Response: doc, Outcome: OutcomeDegraded}

	default:
		doc.Play(audioURL).Gather(h.gather()).Say(h.opts.SayVoice, NoInputLine)
		h.store(s, !found, logger)
		outcome := OutcomeContinue
		if utterance == "" {
			outcome = OutcomeGreeting
		}
		return Result{Response: doc, Outcome: outcome}
	}
}

// respond appends this turn's lines to s and returns the agent's line.
func (h *Handler) respond(ctx context.Context, s *session.CallSession, utterance string, logger *slog.Logger) (string, bool) {
	if utterance == "" {
		line := s.Config.OpeningLine()
		s.Append(session.SpeakerAgent, line, h.now())
		return line, false
	}

	history := s.Window(h.opts.ContextTurns)
	s.Append(session.SpeakerCaller, utterance, h.now())

	var gen brain.GenerateResult
	if h.generator == nil {
		gen = brain.GenerateResult{Text: brain.FallbackReply, Fallback: true, Err: errors.New("no generator configured")}
	} else {
		gen = h.generator.Generate(ctx, brain.GenerateRequest{
			Utterance: utterance,
			History:   history,
			Config:    s.Config,
		})
		h.metrics.ObserveStage(observability.StageGenerate, gen.Latency)
	}
	if gen.Fallback {
		provider := "none"
		if h.generator != nil {
			provider = h.generator.ProviderName()
		}
		h.metrics.ProviderError(provider, generationErrorCode(gen.Err))
		h.metrics.ObserveIndicator("generation_fallback")
		logger.Warn("reply generation failed; using fallback line", "provider", provider, "error", gen.Err)
	} else {
		h.metrics.TokensUsed(gen.Usage.PromptTokens, gen.Usage.CompletionTokens)
		logger.Debug("reply generated",
			"latency_ms", gen.Latency.Milliseconds(),
			"prompt_tokens", gen.Usage.PromptTokens,
			"completion_tokens", gen.Usage.CompletionTokens,
		)
	}

	s.Append(session.SpeakerAgent, gen.Text, h.now())
	return gen.Text, gen.EndCall
}

func (h *Handler) resolveConfig(ctx context.Context, calledNumber string, logger *slog.Logger) session.AgentConfig {
	if h.configs == nil {
		return session.DefaultAgentConfig()
	}
	ctx, cancel := context.WithTimeout(ctx, h.opts.LookupTimeout)
	defer cancel()

	cfg, err := h.configs.LookupByCalledNumber(ctx, calledNumber)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		logger.Info("called number not registered; using default receptionist")
		return session.DefaultAgentConfig()
	case err != nil:
		logger.Warn("directory lookup failed; using default receptionist", "error", err)
		h.metrics.ObserveIndicator("config_fallback")
		return session.DefaultAgentConfig()
	}
	return cfg
}

// stageReply synthesizes line and returns the public URL of the staged clip,
// or "" when no audio is available.
func (h *Handler) stageReply(ctx context.Context, s *session.CallSession, line, baseURL string, logger *slog.Logger) string {
	if h.voice == nil || h.stager == nil {
		return ""
	}
	synthStarted := time.Now()
	clip, err := h.voice.Synthesize(ctx, line, s.Config.Voice)
	h.metrics.ObserveStage(observability.StageSynthesize, time.Since(synthStarted))
	if err != nil {
		h.metrics.ProviderError(h.voice.ProviderName(), voice.ErrorCode(err))
		h.metrics.ObserveIndicator("no_audio")
		logger.Warn("speech synthesis failed",
			"provider", h.voice.ProviderName(),
			"retryable", voice.Retryable(err),
			"error", err,
		)
		return ""
	}

	stageStarted := time.Now()
	name, err := h.stager.Stage(s.CallID, clip)
	h.metrics.ObserveStage(observability.StageStageAudio, time.Since(stageStarted))
	if err != nil {
		h.metrics.ObserveIndicator("no_audio")
		logger.Error("stage audio failed", "error", err)
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/api/audio/" + name
}

func (h *Handler) store(s *session.CallSession, isNew bool, logger *slog.Logger) {
	if isNew {
		h.sessions.Put(s)
		return
	}
	if !h.sessions.Replace(s) {
		logger.Info("session finalized during turn; update dropped")
	}
}

func (h *Handler) finish(ctx context.Context, s *session.CallSession, isNew bool, reason conversations.EndReason, logger *slog.Logger) {
	if h.finalizer == nil {
		h.sessions.Delete(s.CallID)
		return
	}
	if isNew {
		h.sessions.Put(s)
	}
	if _, ok := h.finalizer.Finalize(ctx, s, reason); !ok {
		logger.Info("call already finalized", "end_reason", string(reason))
	}
}

func (h *Handler) playOrPause(doc *twiml.Response, audioURL string) *twiml.Response {
	if audioURL == "" {
		return doc.Pause(1)
	}
	return doc.Play(audioURL)
}

func (h *Handler) gather() twiml.Gather {
	return twiml.Gather{
		Input:         "speech",
		Timeout:       h.opts.GatherTimeout,
		SpeechTimeout: h.opts.SpeechTimeout,
		Action:        h.opts.GatherAction,
		Method:        "POST",
	}
}

func (h *Handler) apology() twiml.Response {
	var doc twiml.Response
	doc.Say(h.opts.SayVoice, ApologyLine).Hangup()
	return doc
}

func generationErrorCode(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, brain.ErrEmptyCompletion):
		return "empty_completion"
	default:
		return "generation"
	}
}
