package voice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/receptionist/internal/audio"
	"github.com/ent0n29/receptionist/internal/session"
)

// DefaultParams favour latency over fidelity.
func DefaultParams() Params {
	return Params{
		VoiceID:         DefaultVoiceID,
		ModelID:         DefaultModelID,
		Stability:       0.3,
		SimilarityBoost: 0.6,
		Style:           0,
		SpeakerBoost:    false,
	}
}

// Pipeline applies per-call voice settings, a hard timeout and output
// normalization around a Synthesizer.
type Pipeline struct {
	synth    Synthesizer
	defaults Params
	timeout  time.Duration
}

func NewPipeline(synth Synthesizer, defaults Params, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	base := DefaultParams()
	if strings.TrimSpace(defaults.VoiceID) == "" {
		defaults.VoiceID = base.VoiceID
	}
	if strings.TrimSpace(defaults.ModelID) == "" {
		defaults.ModelID = base.ModelID
	}
	return &Pipeline{synth: synth, defaults: defaults, timeout: timeout}
}

func (p *Pipeline) ProviderName() string {
	if p.synth == nil {
		return "none"
	}
	return p.synth.Name()
}

// Resolve merges per-call settings over the process defaults. Unset fields
// keep the default.
func (p *Pipeline) Resolve(vs session.VoiceSettings) Params {
	out := p.defaults
	if id := strings.TrimSpace(vs.VoiceID); id != "" {
		out.VoiceID = id
	}
	if vs.Stability != nil {
		out.Stability = *vs.Stability
	}
	if vs.SimilarityBoost != nil {
		out.SimilarityBoost = *vs.SimilarityBoost
	}
	if vs.Style != nil {
		out.Style = *vs.Style
	}
	if vs.SpeakerBoost != nil {
		out.SpeakerBoost = *vs.SpeakerBoost
	}
	return out
}

// Synthesize produces one clip for text. It fails with ErrEmptyText when the
// text has nothing speakable and ErrEmptyAudio when the provider answered
// with no bytes.
func (p *Pipeline) Synthesize(ctx context.Context, text string, vs session.VoiceSettings) (Audio, error) {
	if p.synth == nil {
		return Audio{}, fmt.Errorf("no synthesis provider configured")
	}
	spoken := SpeakableText(text)
	if spoken == "" {
		return Audio{}, ErrEmptyText
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.synth.Synthesize(ctx, spoken, p.Resolve(vs))
	if err != nil {
		return Audio{}, fmt.Errorf("%s synthesize: %w", p.synth.Name(), err)
	}
	if len(out.Data) == 0 {
		return Audio{}, ErrEmptyAudio
	}

	if sampleRate, ok := PCMSampleRate(out.Format); ok {
		wav, err := audio.EncodeWAV(out.Data, sampleRate)
		if err != nil {
			return Audio{}, fmt.Errorf("wrap pcm as wav: %w", err)
		}
		out.Data = wav
		out.ContentType = "audio/wav"
	}
	if out.ContentType == "" {
		out.ContentType = ContentTypeForFormat(out.Format)
	}
	return out, nil
}
