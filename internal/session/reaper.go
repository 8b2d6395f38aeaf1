package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// StalenessPolicy selects the clock an orphaned session is aged by.
type StalenessPolicy string

const (
	// StaleSinceActivity ages a session from its last processed turn.
	StaleSinceActivity StalenessPolicy = "since_activity"
	// StaleSinceStart ages a session from creation. A long healthy call is
	// reaped mid-conversation under this policy.
	StaleSinceStart StalenessPolicy = "since_start"
)

func ParseStalenessPolicy(v string) (StalenessPolicy, error) {
	switch StalenessPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", StaleSinceActivity:
		return StaleSinceActivity, nil
	case StaleSinceStart:
		return StaleSinceStart, nil
	default:
		return "", fmt.Errorf("unknown staleness policy %q (expected since_activity|since_start)", v)
	}
}

// ExpireFunc finalizes one orphaned call and reports whether it did so.
// stale re-evaluates the session at removal time; a call that saw a turn
// after the sweep's snapshot must be left alone.
type ExpireFunc func(ctx context.Context, callID string, stale func(*CallSession) bool) bool

type ReaperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	Policy     StalenessPolicy
}

// Reaper periodically routes stale sessions to an ExpireFunc.
type Reaper struct {
	store  *Store
	cfg    ReaperConfig
	expire ExpireFunc
	logger *slog.Logger
	now    func() time.Time
}

func NewReaper(store *Store, cfg ReaperConfig, expire ExpireFunc, logger *slog.Logger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.Policy == "" {
		cfg.Policy = StaleSinceActivity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		store:  store,
		cfg:    cfg,
		expire: expire,
		logger: logger.With("component", "session.reaper"),
		now:    time.Now,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ctx, r.now())
			}
		}
	}()
}

// Sweep expires every session older than the threshold at now and returns
// how many were actually finalized by this sweep.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) int {
	stale := SelectStale(r.store.Snapshot(), now, r.cfg.StaleAfter, r.cfg.Policy)
	stillStale := func(s *CallSession) bool { return s.Age(now, r.cfg.Policy) > r.cfg.StaleAfter }
	finalized := 0
	for _, s := range stale {
		if r.expire == nil {
			break
		}
		if r.expire(ctx, s.CallID, stillStale) {
			finalized++
		}
	}
	if finalized > 0 {
		r.logger.Info("reaped orphaned sessions", "count", finalized, "policy", string(r.cfg.Policy))
	}
	return finalized
}

// SelectStale filters a snapshot down to sessions whose age exceeds threshold.
func SelectStale(snapshot []*CallSession, now time.Time, threshold time.Duration, policy StalenessPolicy) []*CallSession {
	var out []*CallSession
	for _, s := range snapshot {
		if s.Age(now, policy) > threshold {
			out = append(out, s)
		}
	}
	return out
}
