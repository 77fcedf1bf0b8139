// Package features computes per-field rolling weather features.
//
// Every aggregate is scoped to one field's date-ordered series and includes
// the current day. Short-term windows (3 and 7 days) use whatever history is
// available (minimum one observation); the Full* helpers used by the drought
// model only yield a value once the whole window is present.
package features

import (
	"sort"

	"agroalerts/internal/types"
)

// Window sizes for the short-term features.
const (
	ShortWindow = 3
	WeekWindow  = 7
)

// GroupByField splits records into per-field series sorted by date ascending.
// Field order follows first appearance in the input. A repeated (field, date)
// pair is a data-integrity failure.
func GroupByField(records []types.WeatherDailyRecord) ([]string, map[string][]types.WeatherDailyRecord, error) {
	order := make([]string, 0)
	groups := make(map[string][]types.WeatherDailyRecord)
	seen := make(map[types.FieldDate]struct{}, len(records))

	for _, rec := range records {
		key := types.KeyOf(rec.FieldID, rec.Date)
		if _, dup := seen[key]; dup {
			return nil, nil, types.NewAppErrorWithDetails(
				types.ErrCodeIntegrityDuplicateKey,
				"duplicate weather record for field and date",
				nil,
				map[string]any{"field_id": key.FieldID, "date": key.Date},
			)
		}
		seen[key] = struct{}{}

		if _, ok := groups[rec.FieldID]; !ok {
			order = append(order, rec.FieldID)
		}
		groups[rec.FieldID] = append(groups[rec.FieldID], rec)
	}

	for _, id := range order {
		series := groups[id]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Date.Before(series[j].Date)
		})
	}

	return order, groups, nil
}

// Enrich derives the EnrichedWeatherRow view for every record. Output rows are
// grouped by field (first-appearance order) and sorted by date within a field.
func Enrich(records []types.WeatherDailyRecord) ([]types.EnrichedWeatherRow, error) {
	order, groups, err := GroupByField(records)
	if err != nil {
		return nil, err
	}

	out := make([]types.EnrichedWeatherRow, 0, len(records))
	for _, id := range order {
		out = append(out, enrichSeries(groups[id])...)
	}
	return out, nil
}

// enrichSeries computes features for one field's date-sorted series.
func enrichSeries(series []types.WeatherDailyRecord) []types.EnrichedWeatherRow {
	n := len(series)
	rain := make([]float64, n)
	tempMean := make([]float64, n)
	humMean := make([]float64, n)

	for i, rec := range series {
		rain[i] = rec.Rain
		tempMean[i] = (rec.TempMax + rec.TempMin) / 2
		humMean[i] = (rec.HumidityMax + rec.HumidityMin) / 2
	}

	rain3 := RollingSum(rain, ShortWindow)
	rain7 := RollingSum(rain, WeekWindow)
	hum3 := RollingMean(humMean, ShortWindow)
	temp7 := RollingMean(tempMean, WeekWindow)

	rows := make([]types.EnrichedWeatherRow, n)
	for i, rec := range series {
		rows[i] = types.EnrichedWeatherRow{
			WeatherDailyRecord: rec,
			TempMean:           tempMean[i],
			TempDiff:           rec.TempMax - rec.TempMin,
			HumidityMean:       humMean[i],
			Rain3dSum:          rain3[i],
			Rain7dSum:          rain7[i],
			Humidity3dMean:     hum3[i],
			Temp7dMean:         temp7[i],
		}
	}
	return rows
}
