// Package geo parses the field registry's coordinate text and renders field
// boundaries as WKT polygons for the vegetation provider.
package geo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"agroalerts/internal/types"
)

// MinPolygonPoints is the smallest number of distinct vertices a boundary
// needs before it can be closed into a polygon.
const MinPolygonPoints = 3

// ParseCoordinates decodes a registry coordinate string of the form
// "[[lat, lon], [lat, lon], ...]". Anything else is an integrity failure.
func ParseCoordinates(fieldID, raw string) ([][2]float64, error) {
	var pairs [][]float64
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &pairs); err != nil {
		return nil, malformed(fieldID, "coordinates are not a list of [lat, lon] pairs", err)
	}
	if len(pairs) == 0 {
		return nil, malformed(fieldID, "coordinates are empty", nil)
	}

	out := make([][2]float64, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, malformed(fieldID, fmt.Sprintf("point %d has %d components, want 2", i, len(p)), nil)
		}
		lat, lon := p[0], p[1]
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, malformed(fieldID, fmt.Sprintf("point %d is out of range", i), nil)
		}
		out[i] = [2]float64{lat, lon}
	}
	return out, nil
}

// PolygonWKT renders a field boundary as "POLYGON((lon lat, ...))". Points are
// swapped to lon/lat order and the ring is closed if the last point differs
// from the first.
func PolygonWKT(field types.Field) (string, error) {
	if len(field.Coordinates) < MinPolygonPoints {
		return "", types.NewAppErrorWithDetails(
			types.ErrCodeIntegrityInvalidPolygon,
			"polygon needs at least 3 coordinates",
			nil,
			map[string]any{"field_id": field.ID, "points": len(field.Coordinates)},
		)
	}

	pairs := make([]string, 0, len(field.Coordinates)+1)
	for _, c := range field.Coordinates {
		pairs = append(pairs, formatFloat(c[1])+" "+formatFloat(c[0]))
	}
	if pairs[0] != pairs[len(pairs)-1] {
		pairs = append(pairs, pairs[0])
	}
	return "POLYGON((" + strings.Join(pairs, ", ") + "))", nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func malformed(fieldID, msg string, err error) error {
	return types.NewAppErrorWithDetails(
		types.ErrCodeIntegrityMalformedCoordinates,
		msg,
		err,
		map[string]any{"field_id": fieldID},
	)
}
