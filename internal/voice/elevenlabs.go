package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	providerElevenLabs = "elevenlabs"

	DefaultElevenLabsBaseURL   = "https://api.elevenlabs.io/v1"
	DefaultElevenLabsWSBaseURL = "wss://api.elevenlabs.io"
	DefaultModelID             = "eleven_turbo_v2_5"
	DefaultVoiceID             = "EXAVITQu4vr4xnSDxMaL"
	DefaultOutputFormat        = "mp3_44100_128"

	TransportHTTP = "http"
	TransportWS   = "ws"
)

type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	WSBaseURL    string
	Transport    string
	OutputFormat string
	Logger       *slog.Logger
}

// ElevenLabsProvider synthesizes speech through the ElevenLabs API, either
// with one HTTP request per clip or over the stream-input websocket.
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	client *http.Client
	logger *slog.Logger
}

func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultElevenLabsBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = DefaultElevenLabsWSBaseURL
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = DefaultOutputFormat
	}
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if cfg.Transport == "" {
		cfg.Transport = TransportHTTP
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevenLabsProvider{
		cfg: cfg,
		// Per-request deadlines come from the caller's context.
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With("component", "voice.elevenlabs"),
	}
}

func (p *ElevenLabsProvider) Name() string { return providerElevenLabs }

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text string, params Params) (Audio, error) {
	if strings.TrimSpace(params.VoiceID) == "" {
		return Audio{}, fmt.Errorf("voice_id is required")
	}
	if strings.TrimSpace(params.ModelID) == "" {
		params.ModelID = DefaultModelID
	}
	started := time.Now()

	var (
		data []byte
		err  error
	)
	if p.cfg.Transport == TransportWS {
		data, err = p.synthesizeWS(ctx, text, params)
	} else {
		data, err = p.synthesizeHTTP(ctx, text, params)
	}
	if err != nil {
		return Audio{}, err
	}

	p.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(data),
		"latency_ms", time.Since(started).Milliseconds(),
		"model", params.ModelID,
		"transport", p.cfg.Transport,
	)
	return Audio{
		Data:        data,
		ContentType: ContentTypeForFormat(p.cfg.OutputFormat),
		Format:      p.cfg.OutputFormat,
	}, nil
}

func (p *ElevenLabsProvider) synthesizeHTTP(ctx context.Context, text string, params Params) ([]byte, error) {
	u := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		p.cfg.BaseURL, url.PathEscape(params.VoiceID), url.QueryEscape(p.cfg.OutputFormat))

	body, err := json.Marshal(map[string]any{
		"text":           text,
		"model_id":       params.ModelID,
		"voice_settings": voiceSettingsPayload(params),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", ContentTypeForFormat(p.cfg.OutputFormat))

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, parseAPIError(res)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func voiceSettingsPayload(params Params) map[string]any {
	return map[string]any{
		"stability":         clamp01(params.Stability),
		"similarity_boost":  clamp01(params.SimilarityBoost),
		"style":             clamp01(params.Style),
		"use_speaker_boost": params.SpeakerBoost,
	}
}

func parseAPIError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))

	var errResp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		message = errResp.Detail.Message
	}
	return &APIError{Provider: providerElevenLabs, StatusCode: res.StatusCode, Message: message}
}

// VoiceInfo describes one selectable voice.
type VoiceInfo struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// ListVoices returns the account's voices sorted by name.
func (p *ElevenLabsProvider) ListVoices(ctx context.Context) ([]VoiceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.cfg.APIKey)

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, parseAPIError(res)
	}

	var parsed struct {
		Voices []VoiceInfo `json:"voices"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 2<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}

	out := make([]VoiceInfo, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		v.VoiceID = strings.TrimSpace(v.VoiceID)
		v.Name = strings.TrimSpace(v.Name)
		if v.VoiceID == "" || v.Name == "" {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
