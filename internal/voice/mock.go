package voice

import (
	"context"
	"strings"
)

// MockSynthesizer is used when no synthesis provider is configured. It emits
// a silent MP3 frame per sentence so the full turn path stays exercised.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (m *MockSynthesizer) Name() string { return "mock" }

func (m *MockSynthesizer) Synthesize(ctx context.Context, text string, _ Params) (Audio, error) {
	select {
	case <-ctx.Done():
		return Audio{}, ctx.Err()
	default:
	}
	sentences := strings.Count(text, ".") + strings.Count(text, "?") + strings.Count(text, "!")
	if sentences == 0 {
		sentences = 1
	}
	data := make([]byte, 0, sentences*len(silentMP3Frame))
	for i := 0; i < sentences; i++ {
		data = append(data, silentMP3Frame...)
	}
	return Audio{Data: data, ContentType: "audio/mpeg", Format: "mp3_44100_128"}, nil
}

// One MPEG-1 Layer III frame header followed by zeroed side info.
var silentMP3Frame = append([]byte{0xFF, 0xFB, 0x90, 0x64}, make([]byte, 413)...)
