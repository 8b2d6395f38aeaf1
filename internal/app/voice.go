package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/receptionist/internal/config"
	"github.com/ent0n29/receptionist/internal/httpapi"
	"github.com/ent0n29/receptionist/internal/voice"
)

type voiceSetup struct {
	synth            voice.Synthesizer
	pipeline         *voice.Pipeline
	lister           httpapi.VoiceLister
	resolvedProvider string
	defaultVoiceID   string
	defaultModelID   string
	detail           string
}

func resolveVoice(cfg config.Config, logger *slog.Logger) (voiceSetup, error) {
	synth, err := voice.NewSynthesizer(cfg.VoiceProvider, voice.ElevenLabsConfig{
		APIKey:       cfg.ElevenLabsAPIKey,
		BaseURL:      cfg.ElevenLabsBaseURL,
		WSBaseURL:    cfg.ElevenLabsWSBaseURL,
		Transport:    cfg.ElevenLabsTransport,
		OutputFormat: cfg.ElevenLabsTTSOutputFormat,
		Logger:       logger,
	})
	if err != nil {
		return voiceSetup{}, fmt.Errorf("voice provider init failed: %w", err)
	}

	defaults := voice.DefaultParams()
	if v := strings.TrimSpace(cfg.ElevenLabsTTSVoice); v != "" {
		defaults.VoiceID = v
	}
	if m := strings.TrimSpace(cfg.ElevenLabsTTSModel); m != "" {
		defaults.ModelID = m
	}
	defaults.Stability = cfg.TTSStability
	defaults.SimilarityBoost = cfg.TTSSimilarityBoost

	setup := voiceSetup{
		synth:            synth,
		pipeline:         voice.NewPipeline(synth, defaults, cfg.TTSTimeout),
		resolvedProvider: synth.Name(),
		defaultVoiceID:   defaults.VoiceID,
		defaultModelID:   defaults.ModelID,
	}
	// Only a real ElevenLabs backend can enumerate voices; a typed nil
	// would defeat the handler's nil check.
	if el, ok := synth.(*voice.ElevenLabsProvider); ok {
		setup.lister = el
		setup.detail = "elevenlabs " + strings.ToLower(strings.TrimSpace(cfg.ElevenLabsTransport))
	} else {
		setup.detail = "mock (silent clips)"
	}
	return setup, nil
}
