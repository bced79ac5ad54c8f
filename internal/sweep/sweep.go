// Package sweep runs the periodic bookkeeping jobs: stale-session garbage
// collection, session closing for deactivated users, and release-date
// account deactivation.
package sweep

import (
	"context"
	"strconv"
	"time"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/audit"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/auth"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/obs"
)

const defaultRetention = 30 * 24 * time.Hour

// Sweeper owns the three timer-driven jobs. All jobs are idempotent and safe
// to overlap with user-triggered operations: they only ever transition
// sessions from active to closed.
type Sweeper struct {
	store     auth.Store
	audit     *audit.Logger
	now       func() time.Time
	retention time.Duration
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Sweeper) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithRetention overrides the closed-session retention window.
func WithRetention(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

// New constructs a Sweeper.
func New(store auth.Store, auditLogger *audit.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		audit:     auditLogger,
		now:       time.Now,
		retention: defaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CleanStaleSessions deletes closed sessions whose end time fell out of the
// retention window. Session records are non-authoritative, so the deletion
// itself is not audited.
func (s *Sweeper) CleanStaleSessions(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	deleted, err := s.store.Sessions(ctx).DeleteClosedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	obs.CountStaleSessionsDeleted(deleted)
	if deleted > 0 {
		obs.LogEvent("sweep_stale_sessions", map[string]any{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		})
	}
	return deleted, nil
}

// CloseInactiveUserSessions closes the remaining active sessions of
// unavailable users, one audit record per affected user. Failures on one
// user never abort the rest of the batch.
func (s *Sweeper) CloseInactiveUserSessions(ctx context.Context) (int, error) {
	users, err := s.store.Users(ctx).ListInactiveWithSessions(ctx)
	if err != nil {
		return 0, err
	}
	affected := 0
	for _, user := range users {
		count, err := s.store.Sessions(ctx).CloseAll(ctx, user.ID, "user inactive", s.now().UTC())
		if err != nil {
			obs.CountSweepError("close_inactive_sessions")
			obs.LogEvent("sweep_close_inactive_failed", map[string]any{
				"user_id": user.ID,
				"error":   err.Error(),
			})
			continue
		}
		if count == 0 {
			continue
		}
		affected++
		obs.CountSessionsSwept("user inactive", count)
		s.audit.Record(ctx, &audit.Entry{
			UserID:     user.ID,
			UserName:   user.UserName,
			Action:     "close_sessions",
			Resource:   auth.ResourceSessions,
			ResourceID: user.ID,
			Details: map[string]string{
				"count":  strconv.FormatInt(count, 10),
				"reason": "user inactive",
			},
			Severity: audit.SeverityWarning,
		})
	}
	return affected, nil
}

// DeactivateExpiredUsers flips available to false for accounts whose release
// date has passed, audits each deactivation, then closes the user's
// sessions. Per-user failures are logged and skipped.
func (s *Sweeper) DeactivateExpiredUsers(ctx context.Context) (int, error) {
	now := s.now().UTC()
	users, err := s.store.Users(ctx).ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	deactivated := 0
	for _, user := range users {
		if err := s.store.Users(ctx).Deactivate(ctx, user.ID, "sweeper"); err != nil {
			obs.CountSweepError("deactivate_expired_users")
			obs.LogEvent("sweep_deactivate_failed", map[string]any{
				"user_id": user.ID,
				"error":   err.Error(),
			})
			continue
		}
		deactivated++
		obs.CountUserDeactivated()
		s.audit.Record(ctx, &audit.Entry{
			UserID:     user.ID,
			UserName:   user.UserName,
			Action:     "deactivate_user",
			Resource:   auth.ResourceUsers,
			ResourceID: user.ID,
			Details: map[string]string{
				"reason":       "release date passed",
				"release_date": user.ReleaseDate.Format(time.RFC3339),
			},
			Severity: audit.SeverityWarning,
		})

		count, err := s.store.Sessions(ctx).CloseAll(ctx, user.ID, "user inactive", now)
		if err != nil {
			obs.CountSweepError("deactivate_expired_users")
			obs.LogEvent("sweep_close_after_deactivate_failed", map[string]any{
				"user_id": user.ID,
				"error":   err.Error(),
			})
			continue
		}
		if count > 0 {
			obs.CountSessionsSwept("user inactive", count)
			s.audit.Record(ctx, &audit.Entry{
				UserID:     user.ID,
				UserName:   user.UserName,
				Action:     "close_sessions",
				Resource:   auth.ResourceSessions,
				ResourceID: user.ID,
				Details: map[string]string{
					"count":  strconv.FormatInt(count, 10),
					"reason": "user inactive",
				},
				Severity: audit.SeverityWarning,
			})
		}
	}
	return deactivated, nil
}

// Run drives the jobs on their timers until the context is cancelled:
// the inactive-user closer hourly, the stale cleanup and the deactivator
// daily. Job errors are logged and swallowed so the schedule always
// continues on the next tick.
func (s *Sweeper) Run(ctx context.Context, hourly, daily time.Duration) {
	if hourly <= 0 {
		hourly = time.Hour
	}
	if daily <= 0 {
		daily = 24 * time.Hour
	}
	hourlyTicker := time.NewTicker(hourly)
	dailyTicker := time.NewTicker(daily)
	defer hourlyTicker.Stop()
	defer dailyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hourlyTicker.C:
			s.runJob(ctx, "close_inactive_sessions", func(ctx context.Context) error {
				_, err := s.CloseInactiveUserSessions(ctx)
				return err
			})
		case <-dailyTicker.C:
			s.runJob(ctx, "deactivate_expired_users", func(ctx context.Context) error {
				_, err := s.DeactivateExpiredUsers(ctx)
				return err
			})
			s.runJob(ctx, "clean_stale_sessions", func(ctx context.Context) error {
				_, err := s.CleanStaleSessions(ctx)
				return err
			})
		}
	}
}

func (s *Sweeper) runJob(ctx context.Context, name string, job func(context.Context) error) {
	if err := job(ctx); err != nil {
		obs.CountSweepError(name)
		obs.LogEvent("sweep_job_failed", map[string]any{
			"job":   name,
			"error": err.Error(),
		})
	}
}
