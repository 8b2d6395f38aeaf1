package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the receptionist service.
type Config struct {
	BindAddr         string
	PublicBaseURL    string
	ShutdownTimeout  time.Duration
	LogLevel         string
	LogFormat        string
	MetricsNamespace string
	AllowedOrigins   []string
	DebugEndpoints   bool

	SessionStaleAfter      time.Duration
	SessionReapInterval    time.Duration
	SessionStalenessPolicy string
	SessionContextTurns    int
	ManualCleanupAge       time.Duration

	BrainProvider     string
	BrainHTTPURL      string
	BrainTimeout      time.Duration
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIMaxTokens   int
	OpenAITemperature float64

	VoiceProvider             string
	ElevenLabsAPIKey          string
	ElevenLabsBaseURL         string
	ElevenLabsWSBaseURL       string
	ElevenLabsTransport       string
	ElevenLabsTTSVoice        string
	ElevenLabsTTSModel        string
	ElevenLabsTTSOutputFormat string
	TTSTimeout                time.Duration
	TTSStability              float64
	TTSSimilarityBoost        float64

	AudioStagingDir  string
	AudioDeleteAfter time.Duration

	DatabaseURL       string
	DirectorySeedFile string
	DevOwnerID        string
	// RedactTranscripts masks emails, card and phone numbers before records are stored.
	RedactTranscripts bool
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:               envOrDefault("APP_BIND_ADDR", ":8080"),
		PublicBaseURL:          strings.TrimRight(stringsTrimSpace("APP_PUBLIC_BASE_URL"), "/"),
		LogLevel:               envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:              envOrDefault("APP_LOG_FORMAT", "text"),
		MetricsNamespace:       envOrDefault("APP_METRICS_NAMESPACE", "receptionist"),
		AllowedOrigins:         listFromEnv("APP_ALLOWED_ORIGINS", []string{"*"}),
		SessionStalenessPolicy: envOrDefault("SESSION_STALENESS_POLICY", "since_activity"),
		BrainProvider:          envOrDefault("BRAIN_PROVIDER", "auto"),
		BrainHTTPURL:           stringsTrimSpace("BRAIN_HTTP_URL"),
		OpenAIAPIKey:           stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:          stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIModel:            envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		VoiceProvider:          envOrDefault("VOICE_PROVIDER", "auto"),
		ElevenLabsAPIKey:       stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL:      envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
		ElevenLabsWSBaseURL:    envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsTransport:    envOrDefault("ELEVENLABS_TRANSPORT", "http"),
		// Sarah: a calm premade voice suited to a front desk.
		ElevenLabsTTSVoice: envOrDefault("ELEVENLABS_TTS_VOICE_ID", "EXAVITQu4vr4xnSDxMaL"),
		ElevenLabsTTSModel: envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_turbo_v2_5"),
		// The telephony gateway plays MP3 directly; PCM formats are wrapped as WAV.
		ElevenLabsTTSOutputFormat: envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "mp3_44100_128"),
		AudioStagingDir:           envOrDefault("AUDIO_STAGING_DIR", filepath.Join(os.TempDir(), "receptionist-audio")),
		DatabaseURL:               stringsTrimSpace("DATABASE_URL"),
		DirectorySeedFile:         stringsTrimSpace("DIRECTORY_SEED_FILE"),
		DevOwnerID:                envOrDefault("DEV_OWNER_ID", "dev-user-123"),
		ShutdownTimeout:           15 * time.Second,
		SessionStaleAfter:         2 * time.Minute,
		SessionReapInterval:       2 * time.Minute,
		SessionContextTurns:       4,
		ManualCleanupAge:          30 * time.Second,
		BrainTimeout:              8 * time.Second,
		OpenAIMaxTokens:           40,
		OpenAITemperature:         0.2,
		TTSTimeout:                5 * time.Second,
		TTSStability:              0.3,
		TTSSimilarityBoost:        0.6,
		AudioDeleteAfter:          time.Minute,
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"SESSION_STALE_AFTER", &cfg.SessionStaleAfter},
		{"SESSION_REAP_INTERVAL", &cfg.SessionReapInterval},
		{"SESSION_MANUAL_CLEANUP_AGE", &cfg.ManualCleanupAge},
		{"BRAIN_TIMEOUT", &cfg.BrainTimeout},
		{"TTS_TIMEOUT", &cfg.TTSTimeout},
		{"AUDIO_DELETE_AFTER", &cfg.AudioDeleteAfter},
	}
	for _, d := range durations {
		if *d.dst, err = durationFromEnv(d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}
	cfg.SessionContextTurns, err = intFromEnv("SESSION_CONTEXT_TURNS", cfg.SessionContextTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.OpenAIMaxTokens, err = intFromEnv("OPENAI_MAX_TOKENS", cfg.OpenAIMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.OpenAITemperature, err = floatFromEnv("OPENAI_TEMPERATURE", cfg.OpenAITemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSStability, err = floatFromEnv("TTS_STABILITY", cfg.TTSStability)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSSimilarityBoost, err = floatFromEnv("TTS_SIMILARITY_BOOST", cfg.TTSSimilarityBoost)
	if err != nil {
		return Config{}, err
	}
	cfg.DebugEndpoints, err = boolFromEnv("APP_DEBUG_ENDPOINTS", cfg.DebugEndpoints)
	if err != nil {
		return Config{}, err
	}
	cfg.RedactTranscripts, err = boolFromEnv("PERSIST_REDACT_PII", cfg.RedactTranscripts)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionStaleAfter < 5*time.Second {
		return fmt.Errorf("SESSION_STALE_AFTER must be at least 5s")
	}
	if c.SessionReapInterval < time.Second {
		return fmt.Errorf("SESSION_REAP_INTERVAL must be at least 1s")
	}
	switch c.SessionStalenessPolicy {
	case "since_activity", "since_start":
	default:
		return fmt.Errorf("SESSION_STALENESS_POLICY must be since_activity or since_start, got %q", c.SessionStalenessPolicy)
	}
	if c.SessionContextTurns < 0 {
		return fmt.Errorf("SESSION_CONTEXT_TURNS must be >= 0")
	}
	if c.OpenAIMaxTokens <= 0 {
		return fmt.Errorf("OPENAI_MAX_TOKENS must be positive")
	}
	if c.OpenAITemperature < 0 || c.OpenAITemperature > 2 {
		return fmt.Errorf("OPENAI_TEMPERATURE must be within [0,2]")
	}
	if c.TTSStability < 0 || c.TTSStability > 1 {
		return fmt.Errorf("TTS_STABILITY must be within [0,1]")
	}
	if c.TTSSimilarityBoost < 0 || c.TTSSimilarityBoost > 1 {
		return fmt.Errorf("TTS_SIMILARITY_BOOST must be within [0,1]")
	}
	if c.TTSTimeout <= 0 || c.BrainTimeout <= 0 {
		return fmt.Errorf("TTS_TIMEOUT and BRAIN_TIMEOUT must be positive")
	}
	switch c.ElevenLabsTransport {
	case "http", "ws":
	default:
		return fmt.Errorf("ELEVENLABS_TRANSPORT must be http or ws, got %q", c.ElevenLabsTransport)
	}
	if c.PublicBaseURL != "" && !strings.HasPrefix(c.PublicBaseURL, "http://") && !strings.HasPrefix(c.PublicBaseURL, "https://") {
		return fmt.Errorf("APP_PUBLIC_BASE_URL must be an absolute http(s) URL")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
