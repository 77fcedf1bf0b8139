// Package risk maps enriched weather rows to frost, flood, and pest alert
// levels. The thresholds are fixed model constants; changing any of them is a
// model revision, not a runtime setting. Every alert-producing path (the
// nightly pipeline and the weekly projection) scores through this package.
package risk

import "agroalerts/internal/types"

// Frost thresholds, °C.
const (
	frostHardTempMin = 0.0
	frostSoftTempMin = 2.0
	frostColdWeek    = 5.0
)

// Flood thresholds, mm and %.
const (
	floodHeavyRain3d = 40.0
	floodRain3d      = 20.0
	floodRain7d      = 80.0
	floodHumidity    = 85.0
)

// Pest thresholds.
const (
	pestHumidity3d = 80.0
	pestTempLow    = 15.0
	pestTempHigh   = 28.0
	pestRain3d     = 5.0
)

// FrostScore returns the additive frost score for a row.
func FrostScore(row types.EnrichedWeatherRow) int {
	score := 0
	switch {
	case row.TempMin <= frostHardTempMin:
		score += 2
	case row.TempMin <= frostSoftTempMin:
		score++
	}
	if row.Temp7dMean <= frostColdWeek {
		score++
	}
	return score
}

// FloodScore returns the additive flood score for a row.
func FloodScore(row types.EnrichedWeatherRow) int {
	score := 0
	switch {
	case row.Rain3dSum >= floodHeavyRain3d:
		score += 2
	case row.Rain3dSum >= floodRain3d:
		score++
	}
	if row.Rain7dSum >= floodRain7d {
		score++
	}
	if row.HumidityMean >= floodHumidity {
		score++
	}
	return score
}

// PestScore counts how many of the three pest-favourable conditions hold.
func PestScore(row types.EnrichedWeatherRow) int {
	score := 0
	if row.Humidity3dMean >= pestHumidity3d {
		score++
	}
	if row.Temp7dMean >= pestTempLow && row.Temp7dMean <= pestTempHigh {
		score++
	}
	if row.Rain3dSum >= pestRain3d {
		score++
	}
	return score
}

// Frost returns ALTO for a score of 3 or more, MEDIO for exactly 2, else nil.
func Frost(row types.EnrichedWeatherRow) *types.AlertLevel {
	return additiveLevel(FrostScore(row))
}

// Flood uses the same mapping as Frost.
func Flood(row types.EnrichedWeatherRow) *types.AlertLevel {
	return additiveLevel(FloodScore(row))
}

// Pest returns ALTO when all three conditions hold and MEDIO when exactly two
// do. A single condition never alerts.
func Pest(row types.EnrichedWeatherRow) *types.AlertLevel {
	switch PestScore(row) {
	case 3:
		return types.Level(types.AlertHigh)
	case 2:
		return types.Level(types.AlertMedium)
	default:
		return nil
	}
}

func additiveLevel(score int) *types.AlertLevel {
	switch {
	case score >= 3:
		return types.Level(types.AlertHigh)
	case score == 2:
		return types.Level(types.AlertMedium)
	default:
		return nil
	}
}

// Score applies the three scorers to every row, preserving order.
func Score(rows []types.EnrichedWeatherRow) []types.ScoredRow {
	out := make([]types.ScoredRow, len(rows))
	for i, row := range rows {
		out[i] = types.ScoredRow{
			EnrichedWeatherRow: row,
			Frost:              Frost(row),
			Flood:              Flood(row),
			Pest:               Pest(row),
		}
	}
	return out
}
