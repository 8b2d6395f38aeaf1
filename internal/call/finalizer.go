package call

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/ent0n29/receptionist/internal/conversations"
	"github.com/ent0n29/receptionist/internal/directory"
	"github.com/ent0n29/receptionist/internal/observability"
	"github.com/ent0n29/receptionist/internal/policy"
	"github.com/ent0n29/receptionist/internal/session"
)

// OwnerResolver maps a called number to the owning account.
type OwnerResolver interface {
	ResolveOwnerID(ctx context.Context, number string) (string, error)
}

type FinalizerOptions struct {
	// WriteTimeout bounds the owner lookup and the persistence write together.
	WriteTimeout time.Duration
	// RedactPII masks emails, card and phone numbers in the stored transcript.
	RedactPII bool
}

// Finalizer turns a live session into a persisted conversation record. Removal
// from the session store is the idempotency guard: whoever takes the session
// writes the record, everyone else is a no-op.
type Finalizer struct {
	sessions *session.Store
	records  conversations.Store
	owners   OwnerResolver
	opts     FinalizerOptions
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewFinalizer(sessions *session.Store, records conversations.Store, owners OwnerResolver, opts FinalizerOptions, metrics *observability.Metrics, logger *slog.Logger) *Finalizer {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{
		sessions: sessions,
		records:  records,
		owners:   owners,
		opts:     opts,
		metrics:  metrics,
		logger:   logger.With("component", "finalizer"),
		now:      time.Now,
	}
}

// Finalize ends the call held by s. The caller's copy is used for the record
// since it may carry turns not yet written back to the store. Reports false
// if the session was already finalized.
func (f *Finalizer) Finalize(ctx context.Context, s *session.CallSession, reason conversations.EndReason) (conversations.Record, bool) {
	if s == nil {
		return conversations.Record{}, false
	}
	if _, ok := f.sessions.Take(s.CallID); !ok {
		return conversations.Record{}, false
	}
	return f.persist(ctx, s, reason), true
}

// FinalizeByID ends the call currently stored under callID.
func (f *Finalizer) FinalizeByID(ctx context.Context, callID string, reason conversations.EndReason) (conversations.Record, bool) {
	s, ok := f.sessions.Take(callID)
	if !ok {
		return conversations.Record{}, false
	}
	return f.persist(ctx, s, reason), true
}

// Expire adapts the finalizer to the reaper's callback. The session is
// removed only if stale still holds under the store lock.
func (f *Finalizer) Expire(ctx context.Context, callID string, stale func(*session.CallSession) bool) bool {
	s, ok := f.sessions.TakeIf(callID, stale)
	if !ok {
		return false
	}
	f.persist(ctx, s, conversations.EndTimeoutCleanup)
	return true
}

// CleanupOlderThan finalizes every session started more than age ago.
func (f *Finalizer) CleanupOlderThan(ctx context.Context, age time.Duration, reason conversations.EndReason) []conversations.Record {
	now := f.now()
	stale := session.SelectStale(f.sessions.Snapshot(), now, age, session.StaleSinceStart)
	old := func(s *session.CallSession) bool { return s.Age(now, session.StaleSinceStart) > age }
	out := make([]conversations.Record, 0, len(stale))
	for _, s := range stale {
		live, ok := f.sessions.TakeIf(s.CallID, old)
		if !ok {
			continue
		}
		out = append(out, f.persist(ctx, live, reason))
	}
	return out
}

func (f *Finalizer) persist(ctx context.Context, s *session.CallSession, reason conversations.EndReason) conversations.Record {
	// Teardown must complete even when the inbound request is gone.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.WriteTimeout)
	defer cancel()

	ended := f.now().UTC()
	rec := conversations.Record{
		CallID:          s.CallID,
		OwnerID:         f.resolveOwner(ctx, s.CalledNumber),
		CalledNumber:    s.CalledNumber,
		CallerNumber:    s.CallerNumber,
		BusinessName:    s.Config.BusinessName,
		Transcript:      append([]session.Turn(nil), s.Transcript...),
		Turns:           s.Turns,
		StartedAt:       s.StartedAt,
		EndedAt:         ended,
		DurationSeconds: int64(math.Round(ended.Sub(s.StartedAt).Seconds())),
		EndReason:       reason,
	}
	if rec.DurationSeconds < 0 {
		rec.DurationSeconds = 0
	}
	if f.opts.RedactPII {
		var n int
		rec.Transcript, n = policy.RedactTranscript(rec.Transcript)
		if n > 0 {
			f.logger.Debug("transcript redacted", "call_id", s.CallID, "lines", n)
		}
	}

	f.metrics.SessionFinalized(string(reason))
	logger := f.logger.With(
		"call_id", s.CallID,
		"caller", policy.MaskPhone(s.CallerNumber),
		"end_reason", string(reason),
	)
	if f.records == nil {
		logger.Warn("no conversation store configured; record dropped")
		return rec
	}
	if err := f.records.Append(ctx, rec); err != nil {
		logger.Error("persist conversation failed", "error", err)
		return rec
	}
	logger.Info("call finalized", "owner_id", rec.OwnerID, "turns", rec.Turns, "duration_s", rec.DurationSeconds)
	return rec
}

func (f *Finalizer) resolveOwner(ctx context.Context, calledNumber string) string {
	if f.owners == nil {
		return directory.UnknownOwnerID
	}
	owner, err := f.owners.ResolveOwnerID(ctx, calledNumber)
	if err != nil || owner == "" {
		if err != nil {
			f.logger.Warn("owner lookup failed", "called", policy.MaskPhone(calledNumber), "error", err)
		}
		return directory.UnknownOwnerID
	}
	return owner
}
