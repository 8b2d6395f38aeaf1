package voice

import (
	"errors"
	"fmt"
	"strings"
)

// NewSynthesizer picks a provider by mode: auto, elevenlabs or mock. Auto
// uses ElevenLabs when an API key is present.
func NewSynthesizer(mode string, cfg ElevenLabsConfig) (Synthesizer, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewElevenLabsProvider(cfg), nil
		}
		return NewMockSynthesizer(), nil
	case "elevenlabs":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("ELEVENLABS_API_KEY is required for elevenlabs mode")
		}
		return NewElevenLabsProvider(cfg), nil
	case "mock":
		return NewMockSynthesizer(), nil
	default:
		return nil, fmt.Errorf("unsupported voice provider %q", mode)
	}
}
