package external

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agroalerts/internal/types"
)

// DefaultMaxCloudPct is the cloud-cover ceiling applied to satellite scenes.
const DefaultMaxCloudPct = 20

// VegetationConfig holds the configuration for a VegetationClient.
type VegetationConfig struct {
	BaseURL string
	APIKey  types.SecretString
	Logger  *slog.Logger
}

// FieldPolygon is one field boundary submitted to the provider.
type FieldPolygon struct {
	FieldID string `json:"field_id"`
	WKT     string `json:"wkt"`
}

// IndicesRequest is the body of POST /v1/indices.
type IndicesRequest struct {
	Fields      []FieldPolygon `json:"fields"`
	StartDate   string         `json:"start_date"`
	EndDate     string         `json:"end_date"`
	MaxCloudPct int            `json:"max_cloud_pct"`
}

type indicesObservation struct {
	FieldID string  `json:"field_id"`
	Date    string  `json:"date"`
	NDVI    float64 `json:"ndvi"`
	GNDVI   float64 `json:"gndvi"`
	NDWI    float64 `json:"ndwi"`
	SAVI    float64 `json:"savi"`
}

type indicesResponse struct {
	Observations []indicesObservation `json:"observations"`
}

// VegetationClient requests per-field spectral indices (NDVI, GNDVI, NDWI,
// SAVI) for cloud-filtered satellite scenes.
type VegetationClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
	logger  *slog.Logger
}

// NewVegetationClient creates a VegetationClient.
func NewVegetationClient(httpClient *http.Client, cfg VegetationConfig, opts ...BaseClientOption) *VegetationClient {
	opts = append([]BaseClientOption{WithUpstreamCode(types.ErrCodeUpstreamVegetation)}, opts...)
	base := NewBaseClient(
		httpClient,
		"vegetation",
		RetryPolicy{MaxRetries: 2, MinWait: time.Second, MaxWait: 10 * time.Second},
		userAgent,
		opts...,
	)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &VegetationClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// Indices returns every observation for the given polygons between from and
// to inclusive, in provider order. maxCloudPct <= 0 uses DefaultMaxCloudPct.
func (c *VegetationClient) Indices(ctx context.Context, polygons []FieldPolygon, from, to time.Time, maxCloudPct int) ([]types.VegetationIndexRecord, error) {
	if len(polygons) == 0 {
		return nil, nil
	}
	if maxCloudPct <= 0 {
		maxCloudPct = DefaultMaxCloudPct
	}

	payload, err := json.Marshal(IndicesRequest{
		Fields:      polygons,
		StartDate:   from.UTC().Format(types.DateLayout),
		EndDate:     to.UTC().Format(types.DateLayout),
		MaxCloudPct: maxCloudPct,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize indices request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/indices", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create indices request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := c.apiKey.Unmask(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	c.logger.InfoContext(ctx, "requesting vegetation indices",
		"fields", len(polygons),
		"start_date", from.UTC().Format(types.DateLayout),
		"end_date", to.UTC().Format(types.DateLayout),
	)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		appErr := errorFromResponse(resp, types.ErrCodeUpstreamVegetation, "vegetation Indices")
		c.logger.ErrorContext(ctx, "vegetation API error", "status_code", resp.StatusCode, "error", appErr.Err)
		return nil, appErr
	}

	var body indicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamVegetation, "failed to decode indices response", err)
	}

	out := make([]types.VegetationIndexRecord, 0, len(body.Observations))
	for _, o := range body.Observations {
		date, err := types.ParseDay(o.Date)
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamVegetation, "unparseable observation date", err,
				map[string]any{"field_id": o.FieldID})
		}
		out = append(out, types.VegetationIndexRecord{
			FieldID: o.FieldID,
			Date:    date,
			NDVI:    o.NDVI,
			GNDVI:   o.GNDVI,
			NDWI:    o.NDWI,
			SAVI:    o.SAVI,
		})
	}
	return out, nil
}
