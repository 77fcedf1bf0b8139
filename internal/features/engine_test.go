package features

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agroalerts/internal/types"
)

func day(n int) time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func series(fieldID string, rain []float64) []types.WeatherDailyRecord {
	out := make([]types.WeatherDailyRecord, len(rain))
	for i, r := range rain {
		out[i] = types.WeatherDailyRecord{
			FieldID:     fieldID,
			Date:        day(i),
			TempMax:     20 + float64(i),
			TempMin:     10,
			Rain:        r,
			HumidityMax: 90,
			HumidityMin: 60 + float64(i),
		}
	}
	return out
}

func naiveSum(values []float64, i, n int) float64 {
	start := i - n + 1
	if start < 0 {
		start = 0
	}
	var s float64
	for _, v := range values[start : i+1] {
		s += v
	}
	return s
}

func TestEnrich_RainSumsMatchTrailingWindows(t *testing.T) {
	rain := []float64{0, 12.5, 3, 0, 40, 7.2, 0, 1, 22, 5.5, 0, 9}

	rows, err := Enrich(series("F1", rain))
	require.NoError(t, err)
	require.Len(t, rows, len(rain))

	for i, row := range rows {
		assert.InDelta(t, naiveSum(rain, i, 3), row.Rain3dSum, 1e-9, "rain_3d_sum at %d", i)
		assert.InDelta(t, naiveSum(rain, i, 7), row.Rain7dSum, 1e-9, "rain_7d_sum at %d", i)
	}
}

func TestEnrich_DerivedDailyFields(t *testing.T) {
	rows, err := Enrich([]types.WeatherDailyRecord{{
		FieldID: "F1", Date: day(0),
		TempMax: 18, TempMin: 4, Rain: 2, HumidityMax: 95, HumidityMin: 75,
	}})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 11.0, row.TempMean)
	assert.Equal(t, 14.0, row.TempDiff)
	assert.Equal(t, 85.0, row.HumidityMean)
	// A single day is a complete partial window.
	assert.Equal(t, 2.0, row.Rain3dSum)
	assert.Equal(t, 85.0, row.Humidity3dMean)
	assert.Equal(t, 11.0, row.Temp7dMean)
}

func TestEnrich_PartialWindowMeans(t *testing.T) {
	recs := []types.WeatherDailyRecord{
		{FieldID: "F1", Date: day(0), TempMax: 10, TempMin: 0, HumidityMax: 80, HumidityMin: 80},
		{FieldID: "F1", Date: day(1), TempMax: 20, TempMin: 10, HumidityMax: 90, HumidityMin: 90},
	}

	rows, err := Enrich(recs)
	require.NoError(t, err)

	assert.Equal(t, 5.0, rows[0].Temp7dMean)
	assert.Equal(t, 10.0, rows[1].Temp7dMean) // mean of 5 and 15
	assert.Equal(t, 85.0, rows[1].Humidity3dMean)
}

func TestEnrich_WindowsNeverCrossFields(t *testing.T) {
	a := series("A", []float64{100, 100, 100})
	b := series("B", []float64{1, 1, 1})
	// Interleave and shuffle the input: grouping must not depend on order.
	input := []types.WeatherDailyRecord{b[2], a[0], b[0], a[2], b[1], a[1]}

	rows, err := Enrich(input)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	// First-appearance order: B then A, each sorted by date.
	for i := 0; i < 3; i++ {
		assert.Equal(t, "B", rows[i].FieldID)
		assert.Equal(t, day(i), rows[i].Date)
		assert.Equal(t, float64(i+1), rows[i].Rain3dSum)
	}
	for i := 3; i < 6; i++ {
		assert.Equal(t, "A", rows[i].FieldID)
		assert.Equal(t, 100*float64(i-2), rows[i].Rain3dSum)
	}
}

func TestEnrich_DuplicateKeyFailsFast(t *testing.T) {
	recs := series("F1", []float64{1, 2})
	recs = append(recs, recs[1])

	rows, err := Enrich(recs)
	require.Error(t, err)
	assert.Nil(t, rows)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeIntegrityDuplicateKey, appErr.Code)
	assert.Equal(t, "F1", appErr.Details["field_id"])
}

func TestEnrich_Empty(t *testing.T) {
	rows, err := Enrich(nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFullRolling_UndefinedUntilWindowComplete(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	sums := FullRollingSum(values, 3)
	assert.Nil(t, sums[0])
	assert.Nil(t, sums[1])
	require.NotNil(t, sums[2])
	assert.Equal(t, 6.0, *sums[2])
	assert.Equal(t, 12.0, *sums[4])

	means := FullRollingMean(values, 3)
	assert.Nil(t, means[1])
	assert.Equal(t, 4.0, *means[4])

	assert.Equal(t, []*float64{nil, nil}, FullRollingSum([]float64{1, 2}, 30))
}

func TestRollingMean_MinPeriodsOne(t *testing.T) {
	got := RollingMean([]float64{3, 6, 9, 12}, 3)
	assert.Equal(t, []float64{3, 4.5, 6, 9}, got)
}

// tenths builds rain amounts from 0.1 mm steps the way provider decimals
// decode.
func tenths(steps ...int) []float64 {
	out := make([]float64, len(steps))
	for i, s := range steps {
		out[i] = float64(s) / 10
	}
	return out
}

func TestRollingSum_TenthStepsReachThresholdsExactly(t *testing.T) {
	for _, threshold := range []int{5, 20, 40} {
		total := threshold * 10
		for a := 0; a <= total; a++ {
			for b := 0; a+b <= total; b += 3 {
				window := tenths(a, b, total-a-b)
				sums := RollingSum(window, ShortWindow)
				if sums[2] != float64(threshold) {
					t.Fatalf("3-day sum of %v = %v, want %d", window, sums[2], threshold)
				}
			}
		}
	}

	for a := 0; a <= 759; a += 7 {
		window := tenths(a, 13, 0, 27, 0, 1, 800-a-41)
		if sums := RollingSum(window, WeekWindow); sums[6] != 80 {
			t.Fatalf("7-day sum of %v = %v, want 80", window, sums[6])
		}
	}
}

func TestRollingSum_DryWindowAfterRainIsZero(t *testing.T) {
	rain := append(tenths(1, 2, 3, 4, 5, 6, 7, 8, 9, 200, 3, 7), 0, 0, 0)

	sums := RollingSum(rain, ShortWindow)
	assert.Equal(t, 0.0, sums[len(sums)-1])

	rows, err := Enrich(series("F1", append(rain[:len(rain)-3:len(rain)-3], 20, 0, 0)))
	require.NoError(t, err)
	assert.Equal(t, 20.0, rows[len(rows)-1].Rain3dSum)
}

func TestFullRollingSum_MatchesDirectWindowSums(t *testing.T) {
	rain := make([]float64, 120)
	for i := range rain {
		rain[i] = float64((i*37)%53) / 10
	}

	sums := FullRollingSum(rain, 30)
	for i := 29; i < len(rain); i++ {
		require.NotNil(t, sums[i])
		assert.Equal(t, round(naiveSum(rain, i, 30)), *sums[i], "30-day sum at %d", i)
	}
}
