package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"agroalerts/internal/observability"
	"agroalerts/internal/types"
)

// DefaultLockTTL bounds how long a crashed run can block its task.
const DefaultLockTTL = time.Hour

// JobFunc executes one task for the reference time now and returns the
// number of items it processed.
type JobFunc func(ctx context.Context, now time.Time) (int, error)

// JobLocker abstracts the distributed lock acquisition.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// Result describes one Runner invocation.
type Result struct {
	Task     TaskType      `json:"task"`
	RunID    string        `json:"run_id"`
	LockID   string        `json:"lock_id"`
	Outcome  string        `json:"outcome"`
	Items    int           `json:"items"`
	Duration time.Duration `json:"duration_ns"`
}

// String renders the result the way the job runner reports it.
func (r Result) String() string {
	if r.Outcome == observability.OutcomeSkipped {
		return fmt.Sprintf("skipped: lock %s held by another worker", r.LockID)
	}
	return fmt.Sprintf("task %s %s: %d items processed", r.Task, r.Outcome, r.Items)
}

// RunnerConfig holds the configuration for creating a Runner.
type RunnerConfig struct {
	Jobs     map[TaskType]JobFunc
	Locks    JobLocker
	History  JobHistorian
	Recorder observability.RunRecorder
	Flight   *SingleFlight
	LockTTL  time.Duration
	WorkerID string
	Clock    clockwork.Clock
	Logger   *slog.Logger
	NewRunID func() string
}

// Runner executes tasks under a lock with job history and run metrics.
type Runner struct {
	jobs     map[TaskType]JobFunc
	locks    JobLocker
	history  JobHistorian
	recorder observability.RunRecorder
	flight   *SingleFlight
	lockTTL  time.Duration
	workerID string
	clock    clockwork.Clock
	logger   *slog.Logger
	newRunID func() string
}

// NewRunner creates a Runner. A missing worker ID is generated.
func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		jobs:     cfg.Jobs,
		locks:    cfg.Locks,
		history:  cfg.History,
		recorder: cfg.Recorder,
		flight:   cfg.Flight,
		lockTTL:  cfg.LockTTL,
		workerID: cfg.WorkerID,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		newRunID: cfg.NewRunID,
	}
	if r.flight == nil {
		r.flight = NewSingleFlight()
	}
	if r.lockTTL <= 0 {
		r.lockTTL = DefaultLockTTL
	}
	if r.workerID == "" {
		r.workerID = uuid.NewString()
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.newRunID == nil {
		r.newRunID = uuid.NewString
	}
	return r
}

// LockID returns the job lock key for task at now: the task name and the UTC
// date, or the UTC hour for hourly tasks.
func LockID(task TaskType, now time.Time) string {
	if task.hourly() {
		return fmt.Sprintf("%s:%s", task, now.UTC().Format("2006-01-02T15"))
	}
	return fmt.Sprintf("%s:%s", task, now.UTC().Format(types.DateLayout))
}

// Run executes task for the reference time now.
//
//  1. Reject unknown tasks and tasks already running in this process.
//  2. Acquire the distributed lock; if another worker holds it, return a
//     skipped result with no error.
//  3. Record job start in job_history.
//  4. Dispatch to the task's JobFunc.
//  5. Record job completion and the run metrics.
func (r *Runner) Run(ctx context.Context, task TaskType, now time.Time) (Result, error) {
	job, ok := r.jobs[task]
	if !ok {
		return Result{Task: task}, types.NewAppErrorWithDetails(types.ErrCodeValidationUnknownTask,
			fmt.Sprintf("unknown task type %q", task), nil, map[string]any{"task": string(task)})
	}

	release, ok := r.flight.TryAcquire(task)
	if !ok {
		r.logger.WarnContext(ctx, "task already running in this process", "task", task)
		return Result{Task: task, Outcome: observability.OutcomeSkipped},
			types.NewAppError(types.ErrCodeConflictRunInProgress, fmt.Sprintf("task %s is already running", task), nil)
	}
	defer release()

	now = now.UTC()
	runID := r.newRunID()
	ctx = types.WithRunID(ctx, runID)
	logger := r.logger.With("task", string(task), "run_id", runID, "worker_id", r.workerID)
	ctx = types.WithLogger(ctx, logger)

	result := Result{Task: task, RunID: runID, LockID: LockID(task, now)}
	started := r.clock.Now()

	logger.InfoContext(ctx, "task invoked", "reference_time", now.Format(time.RFC3339))

	acquired, err := r.locks.Acquire(ctx, result.LockID, r.workerID, r.lockTTL)
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire job lock", "lock_id", result.LockID, "error", err)
		return result, fmt.Errorf("acquiring job lock %s: %w", result.LockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock not acquired, another worker is processing", "lock_id", result.LockID)
		result.Outcome = observability.OutcomeSkipped
		r.record(ctx, result)
		return result, nil
	}

	jobID, err := r.history.Start(ctx, string(task))
	if err != nil {
		// History is bookkeeping; the run proceeds without it.
		logger.ErrorContext(ctx, "failed to start job history", "error", err)
		jobID = 0
	}

	items, execErr := job(ctx, now)
	result.Items = items
	result.Duration = r.clock.Since(started)
	result.Outcome = observability.OutcomeSuccess
	if execErr != nil {
		result.Outcome = observability.OutcomeFailed
	}

	if jobID != 0 {
		if finishErr := r.history.Finish(ctx, jobID, result.Outcome, items, execErr); finishErr != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "job_id", jobID, "error", finishErr)
		}
	}
	r.record(ctx, result)

	if execErr != nil {
		logger.ErrorContext(ctx, "task execution failed",
			"error", execErr,
			"items_before_error", items,
			"duration_ms", result.Duration.Milliseconds(),
		)
		return result, fmt.Errorf("task %s failed: %w", task, execErr)
	}

	logger.InfoContext(ctx, "task complete",
		"items", items,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (r *Runner) record(ctx context.Context, result Result) {
	if r.recorder == nil {
		return
	}
	r.recorder.RecordRun(ctx, string(result.Task), result.Outcome, result.Duration)
}
