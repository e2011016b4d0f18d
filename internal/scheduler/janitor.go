// Package scheduler runs the periodic janitor that evicts idle sessions and
// reclaims abandoned staging directories.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/stitchbot/internal/state"
	"github.com/user/stitchbot/internal/types"
)

const (
	DefaultSchedule = "@every 10m"
	DefaultIdleTTL  = 24 * time.Hour
)

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Submitter runs fn in the user's event lane.
type Submitter interface {
	Submit(user types.UserID, fn func(ctx context.Context) error) error
}

// Report summarizes one janitor pass.
type Report struct {
	Submitted  int
	Removed    []string
	Errors     []state.CleanupError
	SessionsAt int
}

// Janitor evicts sessions idle for longer than the TTL together with their
// staging directories, then removes stale directories no session owns.
type Janitor struct {
	sessions *state.Registry
	staging  *state.MediaStore
	lanes    Submitter
	schedule string
	ttl      time.Duration
	now      func() time.Time
	cron     *cron.Cron
}

// New creates a Janitor. When lanes is nil evictions run inline, which is
// only safe while no events are being processed.
func New(sessions *state.Registry, staging *state.MediaStore, lanes Submitter, schedule string, ttl time.Duration) *Janitor {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Janitor{
		sessions: sessions,
		staging:  staging,
		lanes:    lanes,
		schedule: schedule,
		ttl:      ttl,
		now:      time.Now,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the janitor pass on its schedule and starts the cron ticker.
func (j *Janitor) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		report := j.RunOnce(ctx)
		if report.Submitted > 0 || len(report.Removed) > 0 || len(report.Errors) > 0 {
			slog.Info("janitor pass",
				"evictions", report.Submitted,
				"removed_dirs", len(report.Removed),
				"errors", len(report.Errors),
				"sessions", report.SessionsAt)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	slog.Info("janitor scheduled", "schedule", j.schedule, "idle_ttl", j.ttl.String())
	return nil
}

// Stop stops the cron ticker and waits for a running pass to return.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce performs a single pass.
func (j *Janitor) RunOnce(ctx context.Context) Report {
	cutoff := j.now().Add(-j.ttl)
	var report Report

	for _, user := range j.sessions.Idle(cutoff) {
		if ctx.Err() != nil {
			break
		}
		user := user
		evict := func(context.Context) error { return j.evict(user, cutoff) }
		if j.lanes == nil {
			if err := evict(ctx); err != nil {
				report.Errors = append(report.Errors, state.CleanupError{Path: user.String(), Error: err})
			}
			report.Submitted++
			continue
		}
		if err := j.lanes.Submit(user, evict); err != nil {
			slog.Warn("failed to schedule eviction", "user_id", user.String(), "error", err)
			continue
		}
		report.Submitted++
	}

	clean := j.staging.CleanStale(cutoff, j.sessions.Users())
	report.Removed = clean.Removed
	report.Errors = append(report.Errors, clean.Errors...)
	for _, e := range clean.Errors {
		slog.Warn("failed to remove stale staging dir", "path", e.Path, "error", e.Error)
	}
	report.SessionsAt = j.sessions.Len()
	return report
}

// evict runs in the user's lane. The session may have been touched since the
// pass started, in which case Evict leaves it alone.
func (j *Janitor) evict(user types.UserID, cutoff time.Time) error {
	if !j.sessions.Evict(user, cutoff) {
		return nil
	}
	if err := j.staging.Remove(user); err != nil {
		return fmt.Errorf("remove staging for %s: %w", user, err)
	}
	slog.Debug("evicted idle session", "user_id", user.String())
	return nil
}
