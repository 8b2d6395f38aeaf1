package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/receptionist/internal/call"
	"github.com/ent0n29/receptionist/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		MetricsNamespace:       "test_app",
		SessionStaleAfter:      2 * time.Minute,
		SessionReapInterval:    2 * time.Minute,
		SessionStalenessPolicy: "since_activity",
		SessionContextTurns:    4,
		BrainProvider:          "mock",
		BrainTimeout:           time.Second,
		OpenAIMaxTokens:        40,
		OpenAITemperature:      0.2,
		VoiceProvider:          "auto",
		ElevenLabsTransport:    "http",
		TTSTimeout:             time.Second,
		TTSStability:           0.3,
		TTSSimilarityBoost:     0.6,
		AudioStagingDir:        t.TempDir(),
		AudioDeleteAfter:       time.Minute,
		DevOwnerID:             "dev-user-123",
	}
}

func TestBuildWiresMockStack(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res, err := Build(context.Background(), testConfig(t), logger)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { _ = res.Cleanup() })

	if res.Brain != "mock" || res.Voice.Provider != "mock" || res.Config.VoiceProvider != "mock" {
		t.Fatalf("providers = %q / %+v", res.Brain, res.Voice)
	}

	out := res.Handler.HandleTurn(context.Background(), call.Turn{
		CallID:       "CA1",
		CalledNumber: "+15551230000",
		CallerNumber: "+15557654321",
		AudioBaseURL: "https://example.test",
	})
	if out.Outcome != call.OutcomeGreeting {
		t.Fatalf("outcome = %q", out.Outcome)
	}
	if res.Sessions.Count() != 1 {
		t.Fatalf("sessions = %d, want 1", res.Sessions.Count())
	}

	// A sweep far in the future routes the idle call through the finalizer.
	if n := res.Reaper.Sweep(context.Background(), time.Now().Add(10*time.Minute)); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if res.Sessions.Count() != 0 {
		t.Fatalf("stale session survived the sweep")
	}
}

func TestBuildRejectsBadStalenessPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.SessionStalenessPolicy = "whenever"
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("Build() accepted an unknown staleness policy")
	}
}

func TestBuildRequiresKeyForExplicitElevenLabs(t *testing.T) {
	cfg := testConfig(t)
	cfg.VoiceProvider = "elevenlabs"
	_, err := Build(context.Background(), cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "ELEVENLABS_API_KEY") {
		t.Fatalf("Build() error = %v", err)
	}
}

func TestResolveVoiceListerOnlyForElevenLabs(t *testing.T) {
	cfg := testConfig(t)
	cfg.ElevenLabsAPIKey = "el-test"
	setup, err := resolveVoice(cfg, nil)
	if err != nil {
		t.Fatalf("resolveVoice() error = %v", err)
	}
	if setup.lister == nil || setup.resolvedProvider != "elevenlabs" {
		t.Fatalf("setup = %+v", setup)
	}

	cfg.ElevenLabsAPIKey = ""
	setup, err = resolveVoice(cfg, nil)
	if err != nil {
		t.Fatalf("resolveVoice() error = %v", err)
	}
	if setup.lister != nil {
		t.Fatalf("mock backend exposed a voice lister")
	}
	if setup.defaultVoiceID == "" || setup.pipeline == nil {
		t.Fatalf("setup = %+v", setup)
	}
}
