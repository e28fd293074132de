package docauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Defaults for a SessionReaper sweep
const (
	DefaultSweepLimit       = 100
	DefaultSweepConcurrency = 30
)

// SessionReaper deletes expired sessions in bounded batches
type SessionReaper struct {
	Store       SessionStore
	Limit       int
	Concurrency int

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics Metrics
}

// SweepFailure records one session that could not be deleted
type SweepFailure struct {
	SessionToken string
	Err          error
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Found    int
	Deleted  int
	Failures []SweepFailure
}

func NewSessionReaper(store SessionStore) *SessionReaper {
	return (&SessionReaper{Store: store}).EnsureDefaults()
}

func (r *SessionReaper) EnsureDefaults() *SessionReaper {
	if r.Limit <= 0 {
		r.Limit = DefaultSweepLimit
	}
	if r.Concurrency <= 0 {
		r.Concurrency = DefaultSweepConcurrency
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	r.Metrics = metricsOrNoop(r.Metrics)
	return r
}

// Sweep deletes up to limit sessions that expired before now, with at most
// concurrency deletions in flight. Non-positive arguments fall back to the
// reaper's configured values.
//
// Failed deletions are logged and reported in the result; only a failure to
// list expired sessions is returned as an error.
func (r *SessionReaper) Sweep(ctx context.Context, limit, concurrency int) (*SweepResult, error) {
	r.EnsureDefaults()
	if limit <= 0 {
		limit = r.Limit
	}
	if concurrency <= 0 {
		concurrency = r.Concurrency
	}

	expired, err := r.Store.ListExpiredSessions(ctx, r.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing expired sessions: %w", err)
	}
	if len(expired) > limit {
		expired = expired[:limit]
	}

	settled := MapSettled(ctx, expired, concurrency, func(ctx context.Context, s *Session) (struct{}, error) {
		if s.SessionToken == "" {
			return struct{}{}, fmt.Errorf("session %s has no session token", s.ID)
		}
		return struct{}{}, r.Store.DeleteSession(ctx, s.SessionToken)
	})

	result := &SweepResult{Found: len(expired)}
	for i, s := range settled {
		if s.Err != nil {
			r.Logger.Warn("failed to delete expired session", "session_id", expired[i].ID, "err", s.Err)
			result.Failures = append(result.Failures, SweepFailure{SessionToken: expired[i].SessionToken, Err: s.Err})
			continue
		}
		result.Deleted++
	}

	r.Metrics.RecordSessionsReaped(result.Deleted, len(result.Failures))
	r.Logger.Info("expired session sweep complete",
		"found", result.Found,
		"deleted", result.Deleted,
		"failed", len(result.Failures),
	)
	return result, nil
}

// Run sweeps once immediately and then on every tick of interval until ctx is done
func (r *SessionReaper) Run(ctx context.Context, interval time.Duration) {
	r.EnsureDefaults()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx, 0, 0); err != nil {
			r.Logger.Error("expired session sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
