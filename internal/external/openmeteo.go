package external

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agroalerts/internal/types"
)

// Default Open-Meteo endpoints.
const (
	openMeteoForecastBase = "https://api.open-meteo.com"
	openMeteoArchiveBase  = "https://archive-api.open-meteo.com"
)

// Variable lists requested from Open-Meteo.
const (
	dailyForecastVars = "temperature_2m_max,temperature_2m_min,precipitation_sum,relative_humidity_2m_max,relative_humidity_2m_min"
	dailyArchiveVars  = "temperature_2m_max,temperature_2m_min,precipitation_sum"
	hourlyArchiveVars = "relative_humidity_2m"
	currentVars       = "temperature_2m,relative_humidity_2m,precipitation,cloud_cover,wind_speed_10m,wind_direction_10m"
)

// OpenMeteoConfig holds the configuration for an OpenMeteoClient.
type OpenMeteoConfig struct {
	ForecastURL string // defaults to openMeteoForecastBase
	ArchiveURL  string // defaults to openMeteoArchiveBase
	Logger      *slog.Logger
}

// OpenMeteoClient reads daily series, archived days, and current conditions
// from the Open-Meteo forecast and archive APIs. All times are requested in
// UTC.
type OpenMeteoClient struct {
	base        *BaseClient
	forecastURL string
	archiveURL  string
	logger      *slog.Logger
}

// NewOpenMeteoClient creates an OpenMeteoClient. httpClient should carry the
// configured provider timeout.
func NewOpenMeteoClient(httpClient *http.Client, cfg OpenMeteoConfig, opts ...BaseClientOption) *OpenMeteoClient {
	opts = append([]BaseClientOption{WithUpstreamCode(types.ErrCodeUpstreamWeather)}, opts...)
	base := NewBaseClient(httpClient, "open-meteo", DefaultRetryPolicy(), userAgent, opts...)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenMeteoClient{
		base:        base,
		forecastURL: strings.TrimSuffix(withDefault(cfg.ForecastURL, openMeteoForecastBase), "/"),
		archiveURL:  strings.TrimSuffix(withDefault(cfg.ArchiveURL, openMeteoArchiveBase), "/"),
		logger:      logger,
	}
}

// dailyBlock mirrors Open-Meteo's column-oriented "daily" object. Values are
// pointers because the provider emits null for days it cannot fill.
type dailyBlock struct {
	Time        []string   `json:"time"`
	TempMax     []*float64 `json:"temperature_2m_max"`
	TempMin     []*float64 `json:"temperature_2m_min"`
	Precip      []*float64 `json:"precipitation_sum"`
	HumidityMax []*float64 `json:"relative_humidity_2m_max"`
	HumidityMin []*float64 `json:"relative_humidity_2m_min"`
}

type hourlyBlock struct {
	Time     []string   `json:"time"`
	Humidity []*float64 `json:"relative_humidity_2m"`
}

type currentBlock struct {
	Time          string  `json:"time"`
	Temperature   float64 `json:"temperature_2m"`
	Humidity      float64 `json:"relative_humidity_2m"`
	Precipitation float64 `json:"precipitation"`
	CloudCover    float64 `json:"cloud_cover"`
	WindSpeed     float64 `json:"wind_speed_10m"`
	WindDirection float64 `json:"wind_direction_10m"`
}

type openMeteoResponse struct {
	Daily   *dailyBlock   `json:"daily"`
	Hourly  *hourlyBlock  `json:"hourly"`
	Current *currentBlock `json:"current"`
}

// DailySeries fetches the daily forecast series for the field's location,
// including pastDays of history before today. Days with a null value in any
// requested variable are dropped.
func (c *OpenMeteoClient) DailySeries(ctx context.Context, field types.Field, pastDays int) ([]types.WeatherDailyRecord, error) {
	lat, lon, ok := field.Location()
	if !ok {
		return nil, malformedField(field.ID)
	}

	q := pointQuery(lat, lon)
	q.Set("daily", dailyForecastVars)
	if pastDays > 0 {
		q.Set("past_days", strconv.Itoa(pastDays))
	}

	var body openMeteoResponse
	if err := c.get(ctx, c.forecastURL+"/v1/forecast", q, "DailySeries", &body); err != nil {
		return nil, err
	}
	if body.Daily == nil {
		return nil, nil
	}

	d := body.Daily
	out := make([]types.WeatherDailyRecord, 0, len(d.Time))
	dropped := 0
	for i, ts := range d.Time {
		date, err := types.ParseDay(ts)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "unparseable daily timestamp", err)
		}
		tmax, tmin, rain := at(d.TempMax, i), at(d.TempMin, i), at(d.Precip, i)
		hmax, hmin := at(d.HumidityMax, i), at(d.HumidityMin, i)
		if tmax == nil || tmin == nil || rain == nil || hmax == nil || hmin == nil {
			dropped++
			continue
		}
		out = append(out, types.WeatherDailyRecord{
			FieldID:     field.ID,
			Date:        date,
			TempMax:     *tmax,
			TempMin:     *tmin,
			Rain:        *rain,
			HumidityMax: *hmax,
			HumidityMin: *hmin,
		})
	}

	if dropped > 0 {
		c.logger.WarnContext(ctx, "dropped incomplete forecast days", "field_id", field.ID, "dropped", dropped)
	}
	return out, nil
}

// ArchiveDays fetches archived daily values for [from, to] and joins them with
// hourly relative humidity aggregated per day (mean, min, max, rounded to one
// decimal). Only days present in both series are returned.
func (c *OpenMeteoClient) ArchiveDays(ctx context.Context, field types.Field, from, to time.Time) ([]types.ArchiveDailyRecord, error) {
	lat, lon, ok := field.Location()
	if !ok {
		return nil, malformedField(field.ID)
	}

	q := pointQuery(lat, lon)
	q.Set("start_date", from.UTC().Format(types.DateLayout))
	q.Set("end_date", to.UTC().Format(types.DateLayout))
	q.Set("daily", dailyArchiveVars)
	q.Set("hourly", hourlyArchiveVars)

	var body openMeteoResponse
	if err := c.get(ctx, c.archiveURL+"/v1/archive", q, "ArchiveDays", &body); err != nil {
		return nil, err
	}
	if body.Daily == nil || body.Hourly == nil {
		return nil, nil
	}

	humidity := AggregateHumidity(body.Hourly.Time, body.Hourly.Humidity)

	d := body.Daily
	out := make([]types.ArchiveDailyRecord, 0, len(d.Time))
	for i, ts := range d.Time {
		h, ok := humidity[ts]
		if !ok {
			continue
		}
		tmax, tmin, rain := at(d.TempMax, i), at(d.TempMin, i), at(d.Precip, i)
		if tmax == nil || tmin == nil || rain == nil {
			continue
		}
		date, err := types.ParseDay(ts)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "unparseable archive timestamp", err)
		}
		out = append(out, types.ArchiveDailyRecord{
			FieldID:      field.ID,
			Date:         date,
			TempMax:      *tmax,
			TempMin:      *tmin,
			Rain:         *rain,
			HumidityMean: h.Mean,
			HumidityMin:  h.Min,
			HumidityMax:  h.Max,
		})
	}
	return out, nil
}

// Current fetches the instantaneous conditions at a point.
func (c *OpenMeteoClient) Current(ctx context.Context, lat, lon float64) (types.CurrentConditions, error) {
	q := pointQuery(lat, lon)
	q.Set("current", currentVars)

	var body openMeteoResponse
	if err := c.get(ctx, c.forecastURL+"/v1/forecast", q, "Current", &body); err != nil {
		return types.CurrentConditions{}, err
	}
	if body.Current == nil {
		return types.CurrentConditions{}, types.NewAppError(types.ErrCodeUpstreamWeather, "response has no current block", nil)
	}

	cur := body.Current
	ts, err := time.ParseInLocation("2006-01-02T15:04", cur.Time, time.UTC)
	if err != nil {
		return types.CurrentConditions{}, types.NewAppError(types.ErrCodeUpstreamWeather, "unparseable current timestamp", err)
	}

	return types.CurrentConditions{
		Time:             ts,
		Temperature:      cur.Temperature,
		RelativeHumidity: cur.Humidity,
		Precipitation:    cur.Precipitation,
		CloudCover:       cur.CloudCover,
		WindSpeed:        cur.WindSpeed,
		WindDirection:    cur.WindDirection,
	}, nil
}

// DailyHumidity is one day's aggregate of hourly relative humidity.
type DailyHumidity struct {
	Mean, Min, Max float64
}

// AggregateHumidity groups hourly readings ("YYYY-MM-DDTHH:MM") by calendar
// date and returns mean, min and max per date rounded to one decimal. Null
// readings are ignored; a date with no readings is absent.
func AggregateHumidity(times []string, values []*float64) map[string]DailyHumidity {
	type acc struct {
		sum, min, max float64
		n             int
	}
	days := make(map[string]*acc)

	for i, ts := range times {
		v := at(values, i)
		if v == nil || len(ts) < len(types.DateLayout) {
			continue
		}
		day := ts[:len(types.DateLayout)]
		a, ok := days[day]
		if !ok {
			a = &acc{min: *v, max: *v}
			days[day] = a
		}
		a.sum += *v
		a.min = math.Min(a.min, *v)
		a.max = math.Max(a.max, *v)
		a.n++
	}

	out := make(map[string]DailyHumidity, len(days))
	for day, a := range days {
		out[day] = DailyHumidity{
			Mean: round1(a.sum / float64(a.n)),
			Min:  round1(a.min),
			Max:  round1(a.max),
		}
	}
	return out
}

func (c *OpenMeteoClient) get(ctx context.Context, endpoint string, q url.Values, operation string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Open-Meteo request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		appErr := errorFromResponse(resp, types.ErrCodeUpstreamWeather, "open-meteo "+operation)
		c.logger.ErrorContext(ctx, "Open-Meteo API error", "operation", operation, "status_code", resp.StatusCode, "error", appErr.Err)
		return appErr
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamWeather, "failed to decode Open-Meteo response", err)
	}
	return nil
}

func pointQuery(lat, lon float64) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("timezone", "UTC")
	return q
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func malformedField(fieldID string) error {
	return types.NewAppErrorWithDetails(
		types.ErrCodeIntegrityMalformedCoordinates,
		"field has no coordinates",
		nil,
		map[string]any{"field_id": fieldID},
	)
}
