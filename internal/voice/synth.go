package voice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ent0n29/receptionist/internal/reliability"
)

// Params are the resolved settings for one synthesis request.
type Params struct {
	VoiceID         string
	ModelID         string
	Stability       float64
	SimilarityBoost float64
	Style           float64
	SpeakerBoost    bool
}

// Audio is one synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
	// Format is the provider output format, e.g. "mp3_44100_128" or "pcm_16000".
	Format string
}

// Synthesizer turns text into a single audio clip. No retries or fallback
// voices are attempted by implementations.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string, params Params) (Audio, error)
}

var (
	ErrEmptyAudio = errors.New("voice: provider returned no audio")
	ErrEmptyText  = errors.New("voice: nothing to synthesize")
)

// APIError is a non-2xx answer from a synthesis provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether a later identical request could succeed. The
// turn handler never retries, but the classification is surfaced in logs and
// metrics.
func (e *APIError) IsRetryable() bool {
	return reliability.IsRetryableHTTPStatus(e.StatusCode)
}

// StreamError is an error frame received on the websocket transport.
type StreamError struct {
	Provider    string
	MessageType string
	Message     string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s stream %s: %s", e.Provider, e.MessageType, e.Message)
}

func (e *StreamError) IsRetryable() bool {
	return reliability.IsRetryableStreamMessage(e.MessageType)
}

// Retryable reports whether err is a transient provider failure.
func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr.IsRetryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ErrorCode returns a short metrics label for err.
func ErrorCode(err error) string {
	var (
		apiErr    *APIError
		streamErr *StreamError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &apiErr):
		return strconv.Itoa(apiErr.StatusCode)
	case errors.As(err, &streamErr):
		return "stream"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEmptyAudio):
		return "empty_audio"
	default:
		return "transport"
	}
}

// ContentTypeForFormat maps a provider output format to a MIME type.
func ContentTypeForFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	switch {
	case strings.HasPrefix(f, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(f, "pcm"), strings.Contains(f, "wav"):
		return "audio/wav"
	case strings.HasPrefix(f, "ulaw"):
		return "audio/basic"
	case strings.Contains(f, "ogg"), strings.HasPrefix(f, "opus"):
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}

// PCMSampleRate extracts the rate from formats like "pcm_16000".
func PCMSampleRate(format string) (int, bool) {
	f := strings.ToLower(strings.TrimSpace(format))
	rest, ok := strings.CutPrefix(f, "pcm_")
	if !ok {
		if f == "pcm" {
			return 16000, true
		}
		return 0, false
	}
	sr, err := strconv.Atoi(rest)
	if err != nil || sr <= 0 {
		return 16000, true
	}
	return sr, true
}
