package types

import "time"

// DateLayout is the calendar-date wire format used by providers, the store,
// and the API.
const DateLayout = "2006-01-02"

// AlertLevel is the categorical level of a frost, flood, or pest alert.
// A nil *AlertLevel means "no alert".
type AlertLevel string

const (
	AlertHigh   AlertLevel = "ALTO"
	AlertMedium AlertLevel = "MEDIO"
)

// DroughtRisk is the binary drought outcome persisted with each alert row.
type DroughtRisk string

const (
	DroughtHigh DroughtRisk = "High"
	DroughtLow  DroughtRisk = "Low"
)

// DroughtSeverity is the label attached to the fused drought severity.
type DroughtSeverity string

const (
	SeverityMild     DroughtSeverity = "Mild"
	SeverityModerate DroughtSeverity = "Moderate"
	SeveritySevere   DroughtSeverity = "Severe"
)

// Day normalizes t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC calendar date.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FieldDate is the natural key shared by weather, drought, and alert rows.
type FieldDate struct {
	FieldID string
	Date    string // YYYY-MM-DD
}

// KeyOf builds the FieldDate key for a field and a date.
func KeyOf(fieldID string, date time.Time) FieldDate {
	return FieldDate{FieldID: fieldID, Date: date.UTC().Format(DateLayout)}
}

// Field is a monitored parcel from the field registry. Coordinates are
// [lat, lon] pairs in registry order; the first point is the weather location
// and the full ring is the vegetation polygon.
type Field struct {
	ID          string       `json:"field_id"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// Location returns the first coordinate of the field as (lat, lon).
func (f Field) Location() (lat, lon float64, ok bool) {
	if len(f.Coordinates) == 0 {
		return 0, 0, false
	}
	return f.Coordinates[0][0], f.Coordinates[0][1], true
}

// WeatherDailyRecord is one day of provider weather for one field.
type WeatherDailyRecord struct {
	FieldID     string    `json:"field_id"`
	Date        time.Time `json:"date"`
	TempMax     float64   `json:"temp_max"`
	TempMin     float64   `json:"temp_min"`
	Rain        float64   `json:"rain"`
	HumidityMax float64   `json:"humidity_max"`
	HumidityMin float64   `json:"humidity_min"`
}

// EnrichedWeatherRow is a WeatherDailyRecord with its derived, non-persisted
// features. Rolling aggregates never cross field boundaries.
type EnrichedWeatherRow struct {
	WeatherDailyRecord
	TempMean       float64 `json:"temp_mean"`
	TempDiff       float64 `json:"temp_diff"`
	HumidityMean   float64 `json:"humidity_mean"`
	Rain3dSum      float64 `json:"rain_3d_sum"`
	Rain7dSum      float64 `json:"rain_7d_sum"`
	Humidity3dMean float64 `json:"humidity_3d_mean"`
	Temp7dMean     float64 `json:"temp_7d_mean"`
}

// ScoredRow is an enriched row with the three meteorological alert levels.
type ScoredRow struct {
	EnrichedWeatherRow
	Frost *AlertLevel `json:"alerta_helada"`
	Flood *AlertLevel `json:"alerta_inundacion"`
	Pest  *AlertLevel `json:"alerta_plaga"`
}

// ProjectionRow is one forecast day of the 7-day projection: the enriched
// features plus the three meteorological alert levels.
type ProjectionRow = ScoredRow

// VegetationIndexRecord is one cloud-filtered satellite observation of a field.
type VegetationIndexRecord struct {
	FieldID string    `json:"field_id"`
	Date    time.Time `json:"date"`
	NDVI    float64   `json:"ndvi"`
	GNDVI   float64   `json:"gndvi"`
	NDWI    float64   `json:"ndwi"`
	SAVI    float64   `json:"savi"`
}

// DroughtRow is the drought model output for one field and date. Nil pointers
// mark values that are undefined for that row (short window, no vegetation
// match yet).
type DroughtRow struct {
	FieldID         string          `json:"field_id"`
	Date            time.Time       `json:"date"`
	Precip30dSum    *float64        `json:"precip_30day_sum"`
	Precip90dSum    *float64        `json:"precip_90day_sum"`
	Temp30dAvg      *float64        `json:"temp_30day_avg"`
	SPI30           *float64        `json:"spi_30"`
	BinarySPI       int             `json:"drought_binary_spi"`
	WeatherSeverity int             `json:"drought_severity"`
	BinarySoil      *int            `json:"drought_binary_soil"`
	SoilSeverity    *int            `json:"soil_severity"`
	SeverityNumeric int             `json:"severity_numeric"`
	Severity        DroughtSeverity `json:"severity"`
	Risk            DroughtRisk     `json:"drought_risk"`
	Confidence      int             `json:"drought_confidence"`
}

// AlertRecord is the persisted row-per-field-per-date alert. At least one of
// the four alert columns is non-nil.
type AlertRecord struct {
	FieldID string       `json:"field_id"`
	Date    time.Time    `json:"date"`
	Frost   *AlertLevel  `json:"alerta_helada"`
	Flood   *AlertLevel  `json:"alerta_inundacion"`
	Pest    *AlertLevel  `json:"alerta_plaga"`
	Drought *DroughtRisk `json:"alerta_sequia"`
}

// Key returns the record's (field, date) key.
func (a AlertRecord) Key() FieldDate {
	return KeyOf(a.FieldID, a.Date)
}

// IsEmpty reports whether all four alert columns are nil.
func (a AlertRecord) IsEmpty() bool {
	return a.Frost == nil && a.Flood == nil && a.Pest == nil && a.Drought == nil
}

// SameAlerts reports whether a and b carry identical alert values.
func (a AlertRecord) SameAlerts(b AlertRecord) bool {
	return eqPtr(a.Frost, b.Frost) &&
		eqPtr(a.Flood, b.Flood) &&
		eqPtr(a.Pest, b.Pest) &&
		eqPtr(a.Drought, b.Drought)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// AlertChange describes an upserted row that is new or differs from the
// previously stored value.
type AlertChange struct {
	Previous *AlertRecord `json:"previous,omitempty"`
	Current  AlertRecord  `json:"current"`
}

// ArchiveDailyRecord is one day of archived weather for one field, with
// humidity aggregated from hourly readings.
type ArchiveDailyRecord struct {
	FieldID      string    `json:"field_id"`
	Date         time.Time `json:"date"`
	TempMax      float64   `json:"temp_max"`
	TempMin      float64   `json:"temp_min"`
	Rain         float64   `json:"rain"`
	HumidityMean float64   `json:"humidity_mean"`
	HumidityMin  float64   `json:"humidity_min"`
	HumidityMax  float64   `json:"humidity_max"`
}

// CurrentConditions is an instantaneous provider reading at a point.
type CurrentConditions struct {
	FieldID          string    `json:"field_id,omitempty"`
	Time             time.Time `json:"time"`
	Temperature      float64   `json:"temperature"`
	RelativeHumidity float64   `json:"relative_humidity"`
	Precipitation    float64   `json:"precipitation"`
	CloudCover       float64   `json:"cloud_cover"`
	WindSpeed        float64   `json:"wind_speed"`
	WindDirection    float64   `json:"wind_direction"`
}

// Level returns a pointer to l, for building optional alert columns.
func Level(l AlertLevel) *AlertLevel { return &l }

// Risk returns a pointer to r.
func Risk(r DroughtRisk) *DroughtRisk { return &r }
