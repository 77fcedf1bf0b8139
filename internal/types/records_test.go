package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay_NormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("ART", -3*3600)
	in := time.Date(2026, 3, 10, 23, 30, 0, 0, loc) // 02:30 UTC on the 11th

	got := Day(in)

	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDay("31/01/2026")
	assert.Error(t, err)
}

func TestKeyOf_IgnoresLocation(t *testing.T) {
	a := KeyOf("F1", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	b := KeyOf("F1", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC).In(time.UTC))
	assert.Equal(t, a, b)
	assert.Equal(t, "2026-05-01", a.Date)
}

func TestAlertRecord_IsEmpty(t *testing.T) {
	assert.True(t, AlertRecord{FieldID: "F1"}.IsEmpty())
	assert.False(t, AlertRecord{FieldID: "F1", Drought: Risk(DroughtLow)}.IsEmpty())
	assert.False(t, AlertRecord{FieldID: "F1", Pest: Level(AlertMedium)}.IsEmpty())
}

func TestAlertRecord_SameAlerts(t *testing.T) {
	base := AlertRecord{FieldID: "F1", Frost: Level(AlertHigh), Drought: Risk(DroughtLow)}

	tests := []struct {
		name  string
		other AlertRecord
		want  bool
	}{
		{"identical values different pointers", AlertRecord{Frost: Level(AlertHigh), Drought: Risk(DroughtLow)}, true},
		{"level changed", AlertRecord{Frost: Level(AlertMedium), Drought: Risk(DroughtLow)}, false},
		{"column cleared", AlertRecord{Drought: Risk(DroughtLow)}, false},
		{"column added", AlertRecord{Frost: Level(AlertHigh), Flood: Level(AlertMedium), Drought: Risk(DroughtLow)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.SameAlerts(tt.other))
		})
	}
}

func TestField_Location(t *testing.T) {
	f := Field{ID: "F1", Coordinates: [][2]float64{{-34.6, -58.4}, {-34.7, -58.5}}}
	lat, lon, ok := f.Location()
	require.True(t, ok)
	assert.Equal(t, -34.6, lat)
	assert.Equal(t, -58.4, lon)

	_, _, ok = Field{ID: "F2"}.Location()
	assert.False(t, ok)
}
