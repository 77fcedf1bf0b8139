package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agroalerts/internal/types"
)

func newTestOpenMeteo(t *testing.T, handler http.HandlerFunc) *OpenMeteoClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenMeteoClient(
		&http.Client{Timeout: 5 * time.Second},
		OpenMeteoConfig{ForecastURL: server.URL, ArchiveURL: server.URL + "/"},
		WithSleepFunc(noopSleep),
	)
}

var testField = types.Field{ID: "F1", Coordinates: [][2]float64{{40.42, -3.7}, {40.43, -3.7}, {40.43, -3.69}}}

func TestOpenMeteo_DailySeries(t *testing.T) {
	client := newTestOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "40.42", q.Get("latitude"))
		assert.Equal(t, "-3.7", q.Get("longitude"))
		assert.Equal(t, "92", q.Get("past_days"))
		assert.Equal(t, "UTC", q.Get("timezone"))
		assert.Equal(t, dailyForecastVars, q.Get("daily"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"daily": {
				"time": ["2026-03-09", "2026-03-10", "2026-03-11"],
				"temperature_2m_max": [12.5, 9.0, 11.0],
				"temperature_2m_min": [1.5, -2.0, 0.5],
				"precipitation_sum": [0.0, 3.2, 1.0],
				"relative_humidity_2m_max": [90, 95, null],
				"relative_humidity_2m_min": [40, 60, 55]
			}
		}`))
	})

	got, err := client.DailySeries(context.Background(), testField, 92)
	require.NoError(t, err)
	require.Len(t, got, 2, "the day with a null humidity is dropped")

	assert.Equal(t, "F1", got[1].FieldID)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), got[1].Date)
	assert.Equal(t, -2.0, got[1].TempMin)
	assert.Equal(t, 3.2, got[1].Rain)
	assert.Equal(t, 95.0, got[1].HumidityMax)
}

func TestOpenMeteo_DailySeries_NoPastDays(t *testing.T) {
	client := newTestOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("past_days"))
		w.Write([]byte(`{"daily": {"time": []}}`))
	})

	got, err := client.DailySeries(context.Background(), testField, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenMeteo_DailySeries_FieldWithoutCoordinates(t *testing.T) {
	client := newTestOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called")
	})

	_, err := client.DailySeries(context.Background(), types.Field{ID: "F9"}, 92)
	assert.Equal(t, types.ErrCodeIntegrityMalformedCoordinates, types.CodeOf(err))
}

func TestOpenMeteo_DailySeries_BadRequestIsUpstream(t *testing.T) {
	client := newTestOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": true, "reason": "Latitude must be in range"}`))
	})

	_, err := client.DailySeries(context.Background(), testField, 92)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamWeather, types.CodeOf(err))
	assert.Equal(t, http.StatusBadGateway, types.CodeOf(err).HTTPStatus())
}

func TestOpenMeteo_ArchiveDays_AggregatesHourlyHumidity(t *testing.T) {
	client := newTestOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/archive", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2026-03-06", q.Get("start_date"))
		assert.Equal(t, "2026-03-10", q.Get("end_date"))
		assert.Equal(t, "relative_humidity_2m", q.Get("hourly"))

		w.Write([]byte(`{
			"daily": {
				"time": ["2026-03-06", "2026-03-07"],
				"temperature_2m_max": [14.0, 15.0],
				"temperature_2m_min": [3.0, 4.0],
				"precipitation_sum": [0.4, 0.0]
			},
			"hourly": {
				"time": ["2026-03-06T00:00", "2026-03-06T01:00", "2026-03-06T02:00", "2026-03-08T00:00"],
				"relative_humidity_2m": [80, 71, 70, 50]
			}
		}`))
	})

	from := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	got, err := client.ArchiveDays(context.Background(), testField, from, to)
	require.NoError(t, err)

	// 2026-03-07 has no hourly readings and 2026-03-08 has no daily values.
	require.Len(t, got, 1)
	assert.Equal(t, from, got[0].Date)
	assert.Equal(t, 14.0, got[0].TempMax)
	assert.Equal(t, 73.7, got[0].HumidityMean)
	assert.Equal(t, 70.0, got[0].HumidityMin)
	assert.Equal(t, 80.0, got[0].HumidityMax)
}

func TestAggregateHumidity(t *testing.T) {
	v := func(f float64) *float64 { return &f }

	got := AggregateHumidity(
		[]string{"2026-03-01T00:00", "2026-03-01T01:00", "2026-03-01T02:00", "2026-03-02T00:00", "bad"},
		[]*float64{v(60.04), nil, v(61.0), v(99.96), v(1)},
	)

	require.Len(t, got, 2)
	assert.Equal(t, DailyHumidity{Mean: 60.5, Min: 60.0, Max: 61.0}, got["2026-03-01"])
	assert.Equal(t, DailyHumidity{Mean: 100.0, Min: 100.0, Max: 100.0}, got["2026-03-02"])
}

func TestOpenMeteo_Current(t *testing.T) {
	client := newTestOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, currentVars, r.URL.Query().Get("current"))
		w.Write([]byte(`{
			"current": {
				"time": "2026-03-10T14:00",
				"temperature_2m": 17.3,
				"relative_humidity_2m": 48,
				"precipitation": 0.0,
				"cloud_cover": 20,
				"wind_speed_10m": 11.2,
				"wind_direction_10m": 250
			}
		}`))
	})

	got, err := client.Current(context.Background(), 40.4, -3.7)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC), got.Time)
	assert.Equal(t, 17.3, got.Temperature)
	assert.Equal(t, 48.0, got.RelativeHumidity)
	assert.Equal(t, 250.0, got.WindDirection)
}

func TestOpenMeteo_Current_MissingBlock(t *testing.T) {
	client := newTestOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := client.Current(context.Background(), 40.4, -3.7)
	assert.Equal(t, types.ErrCodeUpstreamWeather, types.CodeOf(err))
}
