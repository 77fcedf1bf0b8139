// Package pipeline runs the batch jobs of the service: the nightly alert
// derivation, the weather archive and vegetation index collectors, the hourly
// current-conditions snapshot, and the on-demand 7-day projection.
//
// Every job takes its collaborators as interfaces so it can be driven by the
// scheduler, the Lambda job runner, or a test with in-memory fakes.
//
// Per-field provider failures are logged and the field is skipped for the
// cycle. Integrity and store failures abort the run; the next cycle retries
// the whole batch.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"agroalerts/internal/db"
	"agroalerts/internal/external"
	"agroalerts/internal/types"
)

// Task names shared by the scheduler, job history, and run metrics.
const (
	TaskAlerts            = "alerts"
	TaskWeatherArchive    = "weather_archive"
	TaskVegetation        = "vegetation_indices"
	TaskCurrentConditions = "current_conditions"
)

// FieldLister returns every monitored field.
type FieldLister interface {
	List(ctx context.Context) ([]types.Field, error)
}

// WeatherSource fetches a field's daily weather series, including pastDays
// of history before today.
type WeatherSource interface {
	DailySeries(ctx context.Context, field types.Field, pastDays int) ([]types.WeatherDailyRecord, error)
}

// ArchiveSource fetches archived daily weather for a field over [from, to].
type ArchiveSource interface {
	ArchiveDays(ctx context.Context, field types.Field, from, to time.Time) ([]types.ArchiveDailyRecord, error)
}

// ConditionsSource reads instantaneous conditions at a point.
type ConditionsSource interface {
	Current(ctx context.Context, lat, lon float64) (types.CurrentConditions, error)
}

// VegetationSource fetches satellite indices for a batch of field polygons.
type VegetationSource interface {
	Indices(ctx context.Context, polygons []external.FieldPolygon, from, to time.Time, maxCloudPct int) ([]types.VegetationIndexRecord, error)
}

// VegetationHistory reads stored vegetation observations.
type VegetationHistory interface {
	ListSince(ctx context.Context, since time.Time) ([]types.VegetationIndexRecord, error)
}

// VegetationWriter stores new vegetation observations, returning how many
// were inserted.
type VegetationWriter interface {
	Insert(ctx context.Context, records []types.VegetationIndexRecord) (int, error)
}

// AlertStore persists alert rows with change detection and keeps the outbox
// of changes awaiting publication.
type AlertStore interface {
	UpsertAlerts(ctx context.Context, records []types.AlertRecord) (db.UpsertResult, error)
	PendingChanges(ctx context.Context, limit int) ([]db.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// ArchiveStore stores archived weather days, returning how many were new.
type ArchiveStore interface {
	Insert(ctx context.Context, records []types.ArchiveDailyRecord) (int, error)
}

// ConditionsStore appends one conditions snapshot.
type ConditionsStore interface {
	Insert(ctx context.Context, c types.CurrentConditions) error
}

// FieldSkipCounter counts fields dropped from a run.
type FieldSkipCounter interface {
	FieldSkipped(task string)
}

// skippable reports whether err only concerns the field being fetched.
// Upstream failures are; everything else aborts the run.
func skippable(err error) bool {
	return strings.HasPrefix(string(types.CodeOf(err)), "upstream_")
}

// fieldGate applies the per-field error policy shared by the jobs.
type fieldGate struct {
	task    string
	skips   FieldSkipCounter
	logger  *slog.Logger
	skipped int
}

// check returns nil when the field should be skipped and err when the run
// must stop. A nil err is never passed.
func (g *fieldGate) check(ctx context.Context, fieldID string, err error) error {
	if !skippable(err) {
		g.logger.ErrorContext(ctx, "field fetch failed, aborting run",
			"task", g.task,
			"field_id", fieldID,
			"error", err,
		)
		return err
	}
	g.skip(ctx, fieldID, "error", err)
	return nil
}

func (g *fieldGate) skip(ctx context.Context, fieldID string, args ...any) {
	g.skipped++
	if g.skips != nil {
		g.skips.FieldSkipped(g.task)
	}
	g.logger.WarnContext(ctx, "skipping field",
		append([]any{"task", g.task, "field_id", fieldID}, args...)...)
}

func noData(task string) error {
	return types.NewAppErrorWithDetails(types.ErrCodePipelineNoData,
		"no data for any field", nil, map[string]any{"task": task})
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
