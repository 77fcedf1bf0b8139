package db

import (
	"context"
	"time"

	"agroalerts/internal/types"
)

// ============================================================
// WeatherArchiveRepository
// ============================================================

// WeatherArchiveRepository appends archived daily weather to weather_archive.
// Inserts are deduplicated on full row content, so re-running a day's archive
// job is harmless.
type WeatherArchiveRepository struct {
	db DBTX
}

// NewWeatherArchiveRepository creates a WeatherArchiveRepository backed by the
// given database connection (pool or transaction).
func NewWeatherArchiveRepository(db DBTX) *WeatherArchiveRepository {
	return &WeatherArchiveRepository{db: db}
}

// Insert writes each record unless an identical row already exists and
// returns the number of rows actually inserted.
func (r *WeatherArchiveRepository) Insert(ctx context.Context, records []types.ArchiveDailyRecord) (int, error) {
	inserted := 0
	for i := range records {
		rec := &records[i]
		tag, err := r.db.Exec(ctx,
			`INSERT INTO weather_archive
			 (uid_parcel, time, temp_max, temp_min, rain, humidity_mean, humidity_min, humidity_max)
			 SELECT $1, $2, $3, $4, $5, $6, $7, $8
			 WHERE NOT EXISTS (
			   SELECT 1 FROM weather_archive
			   WHERE uid_parcel = $1 AND time = $2
			     AND temp_max = $3 AND temp_min = $4 AND rain = $5
			     AND humidity_mean = $6 AND humidity_min = $7 AND humidity_max = $8
			 )`,
			rec.FieldID,
			types.Day(rec.Date),
			rec.TempMax,
			rec.TempMin,
			rec.Rain,
			rec.HumidityMean,
			rec.HumidityMin,
			rec.HumidityMax,
		)
		if err != nil {
			return inserted, types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to insert weather archive row", err,
				map[string]any{"field_id": rec.FieldID})
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ============================================================
// VegetationRepository
// ============================================================

// VegetationRepository stores satellite index observations in
// parcel_vegetation_indices with the same content-equality dedup as the
// weather archive.
type VegetationRepository struct {
	db DBTX
}

// NewVegetationRepository creates a VegetationRepository backed by the given
// database connection (pool or transaction).
func NewVegetationRepository(db DBTX) *VegetationRepository {
	return &VegetationRepository{db: db}
}

// Insert writes each observation unless an identical row already exists and
// returns the number of rows actually inserted.
func (r *VegetationRepository) Insert(ctx context.Context, records []types.VegetationIndexRecord) (int, error) {
	inserted := 0
	for i := range records {
		rec := &records[i]
		tag, err := r.db.Exec(ctx,
			`INSERT INTO parcel_vegetation_indices (uid_parcel, fecha, ndvi, gndvi, ndwi, savi)
			 SELECT $1, $2, $3, $4, $5, $6
			 WHERE NOT EXISTS (
			   SELECT 1 FROM parcel_vegetation_indices
			   WHERE uid_parcel = $1 AND fecha = $2
			     AND ndvi = $3 AND gndvi = $4 AND ndwi = $5 AND savi = $6
			 )`,
			rec.FieldID,
			types.Day(rec.Date),
			rec.NDVI,
			rec.GNDVI,
			rec.NDWI,
			rec.SAVI,
		)
		if err != nil {
			return inserted, types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to insert vegetation indices", err,
				map[string]any{"field_id": rec.FieldID})
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ListSince returns every observation dated on or after since, ordered by
// field then date. The order is the source order the drought model uses to
// break nearest-date ties.
func (r *VegetationRepository) ListSince(ctx context.Context, since time.Time) ([]types.VegetationIndexRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT uid_parcel, fecha, ndvi, gndvi, ndwi, savi
		 FROM parcel_vegetation_indices
		 WHERE fecha >= $1
		 ORDER BY uid_parcel, fecha`,
		types.Day(since),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query vegetation indices", err)
	}
	defer rows.Close()

	out := make([]types.VegetationIndexRecord, 0)
	for rows.Next() {
		var v types.VegetationIndexRecord
		if err := rows.Scan(&v.FieldID, &v.Date, &v.NDVI, &v.GNDVI, &v.NDWI, &v.SAVI); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan vegetation indices", err)
		}
		v.Date = types.Day(v.Date)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating vegetation indices", err)
	}
	return out, nil
}

// ============================================================
// ConditionsRepository
// ============================================================

// ConditionsRepository appends hourly current-condition readings to
// meteo_forecast.
type ConditionsRepository struct {
	db DBTX
}

// NewConditionsRepository creates a ConditionsRepository backed by the given
// database connection (pool or transaction).
func NewConditionsRepository(db DBTX) *ConditionsRepository {
	return &ConditionsRepository{db: db}
}

// Insert appends one reading.
func (r *ConditionsRepository) Insert(ctx context.Context, c types.CurrentConditions) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO meteo_forecast
		 (uid_parcel, time, temperature, relative_humidity, precipitation, cloud_cover, wind_speed, wind_direction)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.FieldID,
		c.Time.UTC(),
		c.Temperature,
		c.RelativeHumidity,
		c.Precipitation,
		c.CloudCover,
		c.WindSpeed,
		c.WindDirection,
	)
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to insert current conditions", err,
			map[string]any{"field_id": c.FieldID})
	}
	return nil
}
