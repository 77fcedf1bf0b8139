package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"agroalerts/internal/types"
)

// Schedule computes the next fire time strictly after now.
type Schedule interface {
	Next(now time.Time) time.Time
}

// DailyAt fires once a day at a UTC wall-clock time.
type DailyAt struct {
	Hour   int
	Minute int
}

// ParseDailyAt parses an "HH:MM" UTC time of day.
func ParseDailyAt(s string) (DailyAt, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return DailyAt{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return DailyAt{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Next implements Schedule.
func (d DailyAt) Next(now time.Time) time.Time {
	now = now.UTC()
	y, m, day := now.Date()
	next := time.Date(y, m, day, d.Hour, d.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Every fires on each multiple of a fixed interval, so an hourly schedule
// fires on the hour.
type Every time.Duration

// Next implements Schedule.
func (e Every) Next(now time.Time) time.Time {
	d := time.Duration(e)
	return now.UTC().Truncate(d).Add(d)
}

// TaskRunner is satisfied by *Runner.
type TaskRunner interface {
	Run(ctx context.Context, task TaskType, now time.Time) (Result, error)
}

// Trigger invokes a task on its schedule until its context is cancelled.
type Trigger struct {
	task     TaskType
	schedule Schedule
	runner   TaskRunner
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewDailyTrigger fires task every day at the UTC time at ("HH:MM").
func NewDailyTrigger(task TaskType, at string, runner TaskRunner, clock clockwork.Clock, logger *slog.Logger) (*Trigger, error) {
	daily, err := ParseDailyAt(at)
	if err != nil {
		return nil, err
	}
	return newTrigger(task, daily, runner, clock, logger), nil
}

// NewIntervalTrigger fires task on every multiple of interval.
func NewIntervalTrigger(task TaskType, interval time.Duration, runner TaskRunner, clock clockwork.Clock, logger *slog.Logger) (*Trigger, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval %s for task %s", interval, task)
	}
	return newTrigger(task, Every(interval), runner, clock, logger), nil
}

func newTrigger(task TaskType, schedule Schedule, runner TaskRunner, clock clockwork.Clock, logger *slog.Logger) *Trigger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		task:     task,
		schedule: schedule,
		runner:   runner,
		clock:    clock,
		logger:   logger.With("task", string(task)),
	}
}

// Start blocks, running the task at each fire time, and returns nil once ctx
// is cancelled. Runs execute inline: a run that overruns the next fire time
// delays it rather than overlapping.
func (t *Trigger) Start(ctx context.Context) error {
	for {
		now := t.clock.Now()
		next := t.schedule.Next(now)
		t.logger.InfoContext(ctx, "next run scheduled", "at", next.Format(time.RFC3339))

		timer := t.clock.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.Chan():
		}

		t.fire(ctx, next)
	}
}

func (t *Trigger) fire(ctx context.Context, at time.Time) {
	result, err := t.runner.Run(ctx, t.task, at)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	if types.CodeOf(err) == types.ErrCodeConflictRunInProgress {
		t.logger.WarnContext(ctx, "scheduled run skipped, previous run still in progress")
		return
	}
	// The next fire time retries the whole run.
	t.logger.ErrorContext(ctx, "scheduled run failed",
		"run_id", result.RunID,
		"error", err,
	)
}
