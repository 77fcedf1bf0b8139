package pipeline

import (
	"context"
	"log/slog"

	"agroalerts/internal/features"
	"agroalerts/internal/risk"
	"agroalerts/internal/types"
)

// FieldProjection is the forward projection for one field.
type FieldProjection struct {
	FieldID string                `json:"field_id"`
	Days    []types.ProjectionRow `json:"days"`
}

// ProjectionServiceConfig holds the collaborators of a ProjectionService.
type ProjectionServiceConfig struct {
	Fields  FieldLister
	Weather WeatherSource
	Logger  *slog.Logger
}

// ProjectionService computes the 7-day feature and alert projection from the
// provider forecast. Nothing is persisted.
type ProjectionService struct {
	fields  FieldLister
	weather WeatherSource
	logger  *slog.Logger
}

// NewProjectionService creates a ProjectionService.
func NewProjectionService(cfg ProjectionServiceConfig) *ProjectionService {
	return &ProjectionService{
		fields:  cfg.Fields,
		weather: cfg.Weather,
		logger:  loggerOrDefault(cfg.Logger),
	}
}

// NextWeek returns one projection per field in registry order. Unlike the
// nightly run it does not skip failing fields: any provider error fails the
// whole request. A field whose forecast is empty is returned with no days.
func (s *ProjectionService) NextWeek(ctx context.Context) ([]FieldProjection, error) {
	fields, err := s.fields.List(ctx)
	if err != nil {
		return nil, err
	}

	var forecast []types.WeatherDailyRecord
	for _, field := range fields {
		series, err := s.weather.DailySeries(ctx, field, 0)
		if err != nil {
			s.logger.ErrorContext(ctx, "projection forecast failed",
				"field_id", field.ID,
				"error", err,
			)
			return nil, err
		}
		forecast = append(forecast, series...)
	}

	enriched, err := features.Enrich(forecast)
	if err != nil {
		return nil, err
	}

	byField := make(map[string][]types.ProjectionRow, len(fields))
	for _, row := range risk.Score(enriched) {
		byField[row.FieldID] = append(byField[row.FieldID], row)
	}

	out := make([]FieldProjection, len(fields))
	for i, field := range fields {
		days := byField[field.ID]
		if days == nil {
			days = []types.ProjectionRow{}
		}
		out[i] = FieldProjection{FieldID: field.ID, Days: days}
	}
	return out, nil
}
