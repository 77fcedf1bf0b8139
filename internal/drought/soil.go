package drought

import (
	"time"

	"agroalerts/internal/types"
)

// MatchTolerance is the maximum distance between a weather day and the
// vegetation observation fused into it.
const MatchTolerance = 5 * 24 * time.Hour

// SoilSeverity grades vegetation stress from NDVI: 2 below 0.3, 1 below 0.5,
// otherwise 0.
func SoilSeverity(ndvi float64) int {
	switch {
	case ndvi < 0.3:
		return 2
	case ndvi < 0.5:
		return 1
	default:
		return 0
	}
}

// scaleSoil maps the 0-2 soil scale onto the 0-3 weather scale.
func scaleSoil(severity int) int {
	switch severity {
	case 1:
		return 2
	case 2:
		return 3
	default:
		return 0
	}
}

type soilValue struct {
	severity int
	binary   int
}

// fuseSoil attaches a soil value to each date of one field's date-sorted
// series. veg holds that field's observations in source order. A date takes
// the nearest observation within MatchTolerance (ties go to the earliest in
// source order); dates without a match carry the previous date's value, and
// stay unset until the first match.
func fuseSoil(dates []time.Time, veg []types.VegetationIndexRecord) []*soilValue {
	out := make([]*soilValue, len(dates))
	var last *soilValue

	for i, d := range dates {
		best := -1
		var bestDist time.Duration
		for j, obs := range veg {
			dist := types.Day(obs.Date).Sub(d)
			if dist < 0 {
				dist = -dist
			}
			if dist > MatchTolerance {
				continue
			}
			if best == -1 || dist < bestDist {
				best, bestDist = j, dist
			}
		}

		if best >= 0 {
			sev := SoilSeverity(veg[best].NDVI)
			bin := 0
			if sev > 0 {
				bin = 1
			}
			last = &soilValue{severity: sev, binary: bin}
		}
		out[i] = last
	}
	return out
}
