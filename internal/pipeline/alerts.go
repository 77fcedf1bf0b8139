package pipeline

import (
	"context"
	"log/slog"
	"time"

	"agroalerts/internal/alerts"
	"agroalerts/internal/drought"
	"agroalerts/internal/features"
	"agroalerts/internal/observability"
	"agroalerts/internal/queue"
	"agroalerts/internal/risk"
	"agroalerts/internal/types"
)

// DefaultPastDays is how much weather history the alert run requests per
// field. It covers the 90-day drought horizon.
const DefaultPastDays = 92

// outboxBatch bounds the changes handed to one Publish call.
const outboxBatch = 500

// AlertPipelineConfig holds the collaborators of an AlertPipeline.
type AlertPipelineConfig struct {
	Fields     FieldLister
	Weather    WeatherSource
	Vegetation VegetationHistory
	Store      AlertStore
	Publisher  queue.Publisher
	Metrics    *observability.Metrics
	Recorder   observability.RunRecorder

	PastDays     int // 0 means DefaultPastDays
	LookbackDays int // 0 means alerts.DefaultLookbackDays
	Logger       *slog.Logger
}

// AlertPipeline derives and persists the daily alert rows for every field.
type AlertPipeline struct {
	fields     FieldLister
	weather    WeatherSource
	vegetation VegetationHistory
	store      AlertStore
	publisher  queue.Publisher
	metrics    *observability.Metrics
	recorder   observability.RunRecorder

	pastDays     int
	lookbackDays int
	logger       *slog.Logger
}

// RunResult summarizes one alert run.
type RunResult struct {
	Fields    int // fields in the registry
	Skipped   int // fields dropped for upstream errors or empty series
	Rows      int // reconciled rows inside the window
	Upserted  int
	Changed   int
	Published int
}

// NewAlertPipeline creates an AlertPipeline.
func NewAlertPipeline(cfg AlertPipelineConfig) *AlertPipeline {
	pastDays := cfg.PastDays
	if pastDays <= 0 {
		pastDays = DefaultPastDays
	}
	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = alerts.DefaultLookbackDays
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = queue.NoopPublisher{}
	}
	return &AlertPipeline{
		fields:       cfg.Fields,
		weather:      cfg.Weather,
		vegetation:   cfg.Vegetation,
		store:        cfg.Store,
		publisher:    publisher,
		metrics:      cfg.Metrics,
		recorder:     cfg.Recorder,
		pastDays:     pastDays,
		lookbackDays: lookback,
		logger:       loggerOrDefault(cfg.Logger),
	}
}

// Run executes one alert cycle for the date of now:
//
//  1. Fetch each field's daily series (skipping fields whose provider call
//     fails or returns nothing).
//  2. Enrich and score the combined series.
//  3. Run the drought model against stored vegetation observations.
//  4. Reconcile both outputs over the lookback window and upsert the result.
//  5. Publish every change waiting in the outbox.
//
// Changes enter the outbox in the upsert transaction and leave it only once
// the publisher accepts them, so a publish failure fails the run and the next
// run publishes what is left.
func (p *AlertPipeline) Run(ctx context.Context, now time.Time) (RunResult, error) {
	logger := p.logger.With("task", TaskAlerts, "run_id", types.GetRunID(ctx))

	fields, err := p.fields.List(ctx)
	if err != nil {
		return RunResult{}, err
	}
	result := RunResult{Fields: len(fields)}

	gate := &fieldGate{task: TaskAlerts, skips: p.metrics, logger: logger}
	var weather []types.WeatherDailyRecord
	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		series, err := p.weather.DailySeries(ctx, field, p.pastDays)
		if err != nil {
			if stop := gate.check(ctx, field.ID, err); stop != nil {
				result.Skipped = gate.skipped
				return result, stop
			}
			continue
		}
		if len(series) == 0 {
			gate.skip(ctx, field.ID, "reason", "empty series")
			continue
		}
		weather = append(weather, series...)
	}
	result.Skipped = gate.skipped

	if len(weather) == 0 {
		logger.ErrorContext(ctx, "no weather data for any field", "fields", len(fields))
		return result, noData(TaskAlerts)
	}

	enriched, err := features.Enrich(weather)
	if err != nil {
		logger.ErrorContext(ctx, "feature enrichment failed", "error", err)
		return result, err
	}
	scored := risk.Score(enriched)

	vegetation, err := p.vegetation.ListSince(ctx, earliest(weather).Add(-drought.MatchTolerance))
	if err != nil {
		return result, err
	}
	droughtRows, err := drought.Compute(weather, vegetation)
	if err != nil {
		logger.ErrorContext(ctx, "drought model failed", "error", err)
		return result, err
	}

	window := alerts.WindowEnding(now, p.lookbackDays)
	records := alerts.Reconcile(scored, droughtRows, window)
	result.Rows = len(records)
	if len(records) == 0 {
		logger.InfoContext(ctx, "no alert rows in window",
			"from", window.From.Format(types.DateLayout),
			"to", window.To.Format(types.DateLayout),
		)
	} else {
		upsert, err := p.store.UpsertAlerts(ctx, records)
		if err != nil {
			logger.ErrorContext(ctx, "alert upsert failed", "rows", len(records), "error", err)
			return result, err
		}
		result.Upserted = upsert.Upserted
		result.Changed = upsert.ChangedCount()
		p.metrics.Upserted(upsert.Upserted)
		if p.recorder != nil {
			p.recorder.RecordAlertsChanged(ctx, result.Changed)
		}
	}

	published, err := p.drainOutbox(ctx)
	result.Published = published
	if err != nil {
		logger.ErrorContext(ctx, "alert publication failed",
			"changed", result.Changed,
			"published", published,
			"error", err,
		)
		return result, err
	}

	logger.InfoContext(ctx, "alert run complete",
		"fields", result.Fields,
		"skipped", result.Skipped,
		"rows", result.Rows,
		"upserted", result.Upserted,
		"changed", result.Changed,
		"published", result.Published,
	)
	return result, nil
}

// drainOutbox publishes pending changes oldest first and marks the accepted
// ones. It returns how many were published. A change that was published but
// not marked is published again by the next run.
func (p *AlertPipeline) drainOutbox(ctx context.Context) (int, error) {
	total := 0
	for {
		pending, err := p.store.PendingChanges(ctx, outboxBatch)
		if err != nil || len(pending) == 0 {
			return total, err
		}

		changes := make([]types.AlertChange, len(pending))
		for i, entry := range pending {
			changes[i] = entry.Change
		}
		accepted, pubErr := p.publisher.Publish(ctx, changes)
		accepted = min(max(accepted, 0), len(pending))

		if accepted > 0 {
			ids := make([]int64, accepted)
			for i := range ids {
				ids[i] = pending[i].ID
			}
			if err := p.store.MarkPublished(ctx, ids); err != nil {
				return total, err
			}
			total += accepted
			p.metrics.Published(accepted)
		}

		if pubErr != nil {
			return total, pubErr
		}
		if accepted < len(pending) || len(pending) < outboxBatch {
			return total, nil
		}
	}
}

func earliest(records []types.WeatherDailyRecord) time.Time {
	first := records[0].Date
	for _, r := range records[1:] {
		if r.Date.Before(first) {
			first = r.Date
		}
	}
	return types.Day(first)
}
