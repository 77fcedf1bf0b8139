package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"agroalerts/internal/geo"
	"agroalerts/internal/types"
)

// FieldRepository reads monitored parcels from the parcels table.
type FieldRepository struct {
	db DBTX
}

// NewFieldRepository creates a FieldRepository backed by the given database
// connection (pool or transaction).
func NewFieldRepository(db DBTX) *FieldRepository {
	return &FieldRepository{db: db}
}

// List returns every registered field in uid order. A field whose coordinate
// text cannot be parsed fails the whole call with an integrity error.
func (r *FieldRepository) List(ctx context.Context) ([]types.Field, error) {
	rows, err := r.db.Query(ctx,
		`SELECT uid_parcel, coordinates_parcel
		 FROM parcels
		 ORDER BY uid_parcel`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query parcels", err)
	}
	defer rows.Close()

	fields := make([]types.Field, 0)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan parcel", err)
		}
		coords, err := geo.ParseCoordinates(id, raw)
		if err != nil {
			return nil, err
		}
		fields = append(fields, types.Field{ID: id, Coordinates: coords})
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating parcels", err)
	}
	return fields, nil
}

// Get returns a single field by uid.
func (r *FieldRepository) Get(ctx context.Context, id string) (types.Field, error) {
	var raw string
	err := r.db.QueryRow(ctx,
		`SELECT coordinates_parcel FROM parcels WHERE uid_parcel = $1`,
		id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Field{}, types.NewAppError(types.ErrCodeNotFoundField, "field not found", nil)
		}
		return types.Field{}, types.NewAppError(types.ErrCodeInternalDB, "failed to get parcel", err)
	}

	coords, err := geo.ParseCoordinates(id, raw)
	if err != nil {
		return types.Field{}, err
	}
	return types.Field{ID: id, Coordinates: coords}, nil
}
