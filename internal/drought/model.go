// Package drought derives per-field drought risk from rainfall anomalies
// (a 30-day standardized precipitation index) fused with vegetation stress
// from satellite NDVI.
package drought

import (
	"time"

	"agroalerts/internal/features"
	"agroalerts/internal/types"
)

// LongWindow is the 90-day precipitation horizon.
const LongWindow = 90

// Compute runs the drought model over weather and vegetation records for any
// number of fields. It returns one DroughtRow per weather record, grouped by
// field in first-appearance order and sorted by date. Vegetation records for
// fields with no weather are ignored.
func Compute(weather []types.WeatherDailyRecord, vegetation []types.VegetationIndexRecord) ([]types.DroughtRow, error) {
	order, groups, err := features.GroupByField(weather)
	if err != nil {
		return nil, err
	}

	vegByField := make(map[string][]types.VegetationIndexRecord)
	for _, v := range vegetation {
		vegByField[v.FieldID] = append(vegByField[v.FieldID], v)
	}

	out := make([]types.DroughtRow, 0, len(weather))
	for _, id := range order {
		out = append(out, computeField(groups[id], vegByField[id])...)
	}
	return out, nil
}

func computeField(series []types.WeatherDailyRecord, veg []types.VegetationIndexRecord) []types.DroughtRow {
	n := len(series)
	rain := make([]float64, n)
	tempMean := make([]float64, n)
	dates := make([]time.Time, n)
	for i, rec := range series {
		rain[i] = rec.Rain
		tempMean[i] = (rec.TempMax + rec.TempMin) / 2
		dates[i] = types.Day(rec.Date)
	}

	p30 := features.FullRollingSum(rain, SPIWindow)
	p90 := features.FullRollingSum(rain, LongWindow)
	t30 := features.FullRollingMean(tempMean, SPIWindow)
	spi := SPI(rain)
	soil := fuseSoil(dates, veg)

	rows := make([]types.DroughtRow, n)
	for i, rec := range series {
		row := types.DroughtRow{
			FieldID:         rec.FieldID,
			Date:            rec.Date,
			Precip30dSum:    p30[i],
			Precip90dSum:    p90[i],
			Temp30dAvg:      t30[i],
			SPI30:           spi[i],
			BinarySPI:       BinarySPI(spi[i]),
			WeatherSeverity: WeatherSeverity(spi[i]),
		}

		scaled := 0
		soilBinary := 0
		if s := soil[i]; s != nil {
			sev, bin := s.severity, s.binary
			row.SoilSeverity = &sev
			row.BinarySoil = &bin
			scaled = scaleSoil(sev)
			soilBinary = bin
		}

		row.SeverityNumeric = max(row.WeatherSeverity, scaled)
		row.Severity = SeverityLabel(row.SeverityNumeric)
		row.Risk = types.DroughtLow
		if row.BinarySPI == 1 || soilBinary == 1 {
			row.Risk = types.DroughtHigh
		}
		row.Confidence = Confidence(row.BinarySPI, soilBinary, row.Severity)
		rows[i] = row
	}
	return rows
}

// SeverityLabel names a fused 0-3 severity.
func SeverityLabel(severity int) types.DroughtSeverity {
	switch {
	case severity <= 1:
		return types.SeverityMild
	case severity == 2:
		return types.SeverityModerate
	default:
		return types.SeveritySevere
	}
}

// Confidence weighs each binary signal at 40 points and adds 10 for a moderate
// or 20 for a severe label, capped at 100.
func Confidence(binarySPI, binarySoil int, severity types.DroughtSeverity) int {
	bonus := 0
	switch severity {
	case types.SeverityModerate:
		bonus = 10
	case types.SeveritySevere:
		bonus = 20
	}
	return min(100, 40*binarySPI+40*binarySoil+bonus)
}
