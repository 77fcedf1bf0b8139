package pipeline

import (
	"context"
	"log/slog"
	"time"

	"agroalerts/internal/external"
	"agroalerts/internal/geo"
	"agroalerts/internal/types"
)

// DefaultCollectLookbackDays is how far back the archive and vegetation
// collectors reach on each run. Overlapping runs are deduplicated by the store.
const DefaultCollectLookbackDays = 4

func collectRange(now time.Time, lookbackDays int) (time.Time, time.Time) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultCollectLookbackDays
	}
	to := types.Day(now)
	return to.AddDate(0, 0, -lookbackDays), to
}

// WeatherArchiveJobConfig holds the collaborators of a WeatherArchiveJob.
type WeatherArchiveJobConfig struct {
	Fields       FieldLister
	Archive      ArchiveSource
	Store        ArchiveStore
	Skips        FieldSkipCounter
	LookbackDays int
	Logger       *slog.Logger
}

// WeatherArchiveJob copies recent archived weather for every field into the
// weather_archive table.
type WeatherArchiveJob struct {
	cfg    WeatherArchiveJobConfig
	logger *slog.Logger
}

// NewWeatherArchiveJob creates a WeatherArchiveJob.
func NewWeatherArchiveJob(cfg WeatherArchiveJobConfig) *WeatherArchiveJob {
	return &WeatherArchiveJob{cfg: cfg, logger: loggerOrDefault(cfg.Logger)}
}

// Run fetches [now-lookback, now] for each field and returns the number of
// rows that were not already stored.
func (j *WeatherArchiveJob) Run(ctx context.Context, now time.Time) (int, error) {
	logger := j.logger.With("task", TaskWeatherArchive, "run_id", types.GetRunID(ctx))
	from, to := collectRange(now, j.cfg.LookbackDays)

	fields, err := j.cfg.Fields.List(ctx)
	if err != nil {
		return 0, err
	}

	gate := &fieldGate{task: TaskWeatherArchive, skips: j.cfg.Skips, logger: logger}
	var records []types.ArchiveDailyRecord
	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		days, err := j.cfg.Archive.ArchiveDays(ctx, field, from, to)
		if err != nil {
			if stop := gate.check(ctx, field.ID, err); stop != nil {
				return 0, stop
			}
			continue
		}
		if len(days) == 0 {
			gate.skip(ctx, field.ID, "reason", "empty archive")
			continue
		}
		records = append(records, days...)
	}

	if len(records) == 0 {
		logger.ErrorContext(ctx, "no archive data for any field", "fields", len(fields))
		return 0, noData(TaskWeatherArchive)
	}

	inserted, err := j.cfg.Store.Insert(ctx, records)
	if err != nil {
		return 0, err
	}

	logger.InfoContext(ctx, "weather archive stored",
		"fields", len(fields),
		"skipped", gate.skipped,
		"fetched", len(records),
		"inserted", inserted,
	)
	return inserted, nil
}

// VegetationJobConfig holds the collaborators of a VegetationJob.
type VegetationJobConfig struct {
	Fields       FieldLister
	Source       VegetationSource
	Store        VegetationWriter
	LookbackDays int
	MaxCloudPct  int // 0 means external.DefaultMaxCloudPct
	Logger       *slog.Logger
}

// VegetationJob collects recent satellite indices for all field polygons.
type VegetationJob struct {
	cfg    VegetationJobConfig
	logger *slog.Logger
}

// NewVegetationJob creates a VegetationJob.
func NewVegetationJob(cfg VegetationJobConfig) *VegetationJob {
	if cfg.MaxCloudPct <= 0 {
		cfg.MaxCloudPct = external.DefaultMaxCloudPct
	}
	return &VegetationJob{cfg: cfg, logger: loggerOrDefault(cfg.Logger)}
}

// Run requests indices for every field in one provider call. A field whose
// boundary cannot form a polygon fails the run, as does a provider error.
// A window with no cloud-free observations is not an error.
func (j *VegetationJob) Run(ctx context.Context, now time.Time) (int, error) {
	logger := j.logger.With("task", TaskVegetation, "run_id", types.GetRunID(ctx))
	from, to := collectRange(now, j.cfg.LookbackDays)

	fields, err := j.cfg.Fields.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		logger.InfoContext(ctx, "no fields registered")
		return 0, nil
	}

	polygons := make([]external.FieldPolygon, 0, len(fields))
	for _, field := range fields {
		wkt, err := geo.PolygonWKT(field)
		if err != nil {
			logger.ErrorContext(ctx, "invalid field polygon", "field_id", field.ID, "error", err)
			return 0, err
		}
		polygons = append(polygons, external.FieldPolygon{FieldID: field.ID, WKT: wkt})
	}

	observations, err := j.cfg.Source.Indices(ctx, polygons, from, to, j.cfg.MaxCloudPct)
	if err != nil {
		logger.ErrorContext(ctx, "vegetation indices request failed", "error", err)
		return 0, err
	}
	if len(observations) == 0 {
		logger.InfoContext(ctx, "no cloud-free observations in range",
			"from", from.Format(types.DateLayout),
			"to", to.Format(types.DateLayout),
		)
		return 0, nil
	}

	inserted, err := j.cfg.Store.Insert(ctx, observations)
	if err != nil {
		return 0, err
	}

	logger.InfoContext(ctx, "vegetation indices stored",
		"fields", len(fields),
		"observations", len(observations),
		"inserted", inserted,
	)
	return inserted, nil
}

// ConditionsJobConfig holds the collaborators of a ConditionsJob.
type ConditionsJobConfig struct {
	Fields FieldLister
	Source ConditionsSource
	Store  ConditionsStore
	Skips  FieldSkipCounter
	Logger *slog.Logger
}

// ConditionsJob snapshots current conditions at each field's weather point.
type ConditionsJob struct {
	cfg    ConditionsJobConfig
	logger *slog.Logger
}

// NewConditionsJob creates a ConditionsJob.
func NewConditionsJob(cfg ConditionsJobConfig) *ConditionsJob {
	return &ConditionsJob{cfg: cfg, logger: loggerOrDefault(cfg.Logger)}
}

// Run stores one snapshot per field and returns how many were stored.
func (j *ConditionsJob) Run(ctx context.Context, _ time.Time) (int, error) {
	logger := j.logger.With("task", TaskCurrentConditions, "run_id", types.GetRunID(ctx))

	fields, err := j.cfg.Fields.List(ctx)
	if err != nil {
		return 0, err
	}

	gate := &fieldGate{task: TaskCurrentConditions, skips: j.cfg.Skips, logger: logger}
	stored := 0
	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		lat, lon, ok := field.Location()
		if !ok {
			err := types.NewAppErrorWithDetails(types.ErrCodeIntegrityMalformedCoordinates,
				"field has no coordinates", nil, map[string]any{"field_id": field.ID})
			logger.ErrorContext(ctx, "field has no weather point", "field_id", field.ID)
			return stored, err
		}

		current, err := j.cfg.Source.Current(ctx, lat, lon)
		if err != nil {
			if stop := gate.check(ctx, field.ID, err); stop != nil {
				return stored, stop
			}
			continue
		}
		current.FieldID = field.ID

		if err := j.cfg.Store.Insert(ctx, current); err != nil {
			return stored, err
		}
		stored++
	}

	if len(fields) > 0 && stored == 0 {
		logger.ErrorContext(ctx, "no conditions stored for any field", "fields", len(fields))
		return 0, noData(TaskCurrentConditions)
	}

	logger.InfoContext(ctx, "current conditions stored",
		"fields", len(fields),
		"skipped", gate.skipped,
		"stored", stored,
	)
	return stored, nil
}
