package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsSessionLifecycle(t *testing.T) {
	m := NewMetrics("receptionist_test")
	m.SessionStarted()
	m.SessionStarted()
	m.SessionFinalized("normal_end")

	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Fatalf("active_sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsFinalized.WithLabelValues("normal_end")); got != 1 {
		t.Fatalf("sessions_finalized_total{normal_end} = %v, want 1", got)
	}
	m.TurnCompleted("continue", 420*time.Millisecond)
	if got := testutil.ToFloat64(m.CallTurns.WithLabelValues("continue")); got != 1 {
		t.Fatalf("call_turns_total{continue} = %v, want 1", got)
	}
	if snap := m.SnapshotTurnStages(); len(snap.Stages) != 1 || snap.Stages[0].Stage != StageTurnTotal {
		t.Fatalf("turn stages = %+v", snap.Stages)
	}
}

func TestMetricsHandlerServesOwnRegistry(t *testing.T) {
	m := NewMetrics("receptionist_handler")
	m.TokensUsed(12, 5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `receptionist_handler_llm_tokens_total{kind="prompt"} 12`) {
		t.Fatalf("metrics output missing token counter:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionStarted()
	m.SessionFinalized("test")
	m.TurnCompleted("end", time.Second)
	m.ProviderError("openai", "timeout")
	m.ObserveStage(StageGenerate, time.Second)
	if snap := m.SnapshotTurnStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot = %+v", snap)
	}
}
