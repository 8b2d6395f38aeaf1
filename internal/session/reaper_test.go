package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestReaperSweepStartPolicy(t *testing.T) {
	m := NewStore()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.Put(New("CA1", "a", "b", DefaultAgentConfig(), t0))

	var expired []string
	r := NewReaper(m, ReaperConfig{StaleAfter: 120 * time.Second, Policy: StaleSinceStart}, func(_ context.Context, callID string, stale func(*CallSession) bool) bool {
		if _, ok := m.TakeIf(callID, stale); !ok {
			return false
		}
		expired = append(expired, callID)
		return true
	}, nil)

	if n := r.Sweep(context.Background(), t0.Add(100*time.Second)); n != 0 {
		t.Fatalf("Sweep() at +100s = %d, want 0", n)
	}
	if n := r.Sweep(context.Background(), t0.Add(130*time.Second)); n != 1 {
		t.Fatalf("Sweep() at +130s = %d, want 1", n)
	}
	if len(expired) != 1 || expired[0] != "CA1" {
		t.Fatalf("expired = %v, want [CA1]", expired)
	}
	if m.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", m.Count())
	}
}

func TestReaperActivityPolicyKeepsLiveCalls(t *testing.T) {
	m := NewStore()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New("CA1", "a", "b", DefaultAgentConfig(), t0)
	s.Touch(t0.Add(100 * time.Second))
	m.Put(s)

	calls := 0
	expire := func(context.Context, string, func(*CallSession) bool) bool { calls++; return true }

	byActivity := NewReaper(m, ReaperConfig{StaleAfter: 120 * time.Second, Policy: StaleSinceActivity}, expire, nil)
	if n := byActivity.Sweep(context.Background(), t0.Add(130*time.Second)); n != 0 {
		t.Fatalf("activity Sweep() = %d, want 0", n)
	}

	byStart := NewReaper(m, ReaperConfig{StaleAfter: 120 * time.Second, Policy: StaleSinceStart}, expire, nil)
	if n := byStart.Sweep(context.Background(), t0.Add(130*time.Second)); n != 1 {
		t.Fatalf("start Sweep() = %d, want 1", n)
	}
	if calls != 1 {
		t.Fatalf("expire calls = %d, want 1", calls)
	}
}

func TestReaperSkipsSessionRefreshedAfterSnapshot(t *testing.T) {
	m := NewStore()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.Put(New("CA1", "a", "b", DefaultAgentConfig(), t0))
	sweepAt := t0.Add(130 * time.Second)

	r := NewReaper(m, ReaperConfig{StaleAfter: 120 * time.Second, Policy: StaleSinceActivity}, func(_ context.Context, callID string, stale func(*CallSession) bool) bool {
		// A caller turn lands between the snapshot and the removal.
		live, _ := m.Get(callID)
		live.Touch(sweepAt.Add(-time.Second))
		m.Replace(live)

		_, ok := m.TakeIf(callID, stale)
		return ok
	}, nil)

	if n := r.Sweep(context.Background(), sweepAt); n != 0 {
		t.Fatalf("Sweep() = %d, want 0", n)
	}
	if _, ok := m.Get("CA1"); !ok {
		t.Fatalf("refreshed session was reaped")
	}
}

func TestReaperStartRunsOnInterval(t *testing.T) {
	m := NewStore()
	m.Put(New("CA1", "a", "b", DefaultAgentConfig(), time.Now().Add(-time.Hour)))

	var mu sync.Mutex
	var got []string
	r := NewReaper(m, ReaperConfig{Interval: 10 * time.Millisecond, StaleAfter: time.Minute}, func(_ context.Context, callID string, stale func(*CallSession) bool) bool {
		if _, ok := m.TakeIf(callID, stale); !ok {
			return false
		}
		mu.Lock()
		got = append(got, callID)
		mu.Unlock()
		return true
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expired = %v, want exactly [CA1]", got)
	}
}

func TestParseStalenessPolicy(t *testing.T) {
	cases := []struct {
		in      string
		want    StalenessPolicy
		wantErr bool
	}{
		{"", StaleSinceActivity, false},
		{"since_start", StaleSinceStart, false},
		{" SINCE_ACTIVITY ", StaleSinceActivity, false},
		{"lru", "", true},
	}
	for _, tc := range cases {
		got, err := ParseStalenessPolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseStalenessPolicy(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseStalenessPolicy(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
