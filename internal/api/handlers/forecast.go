// Package handlers contains the HTTP handlers for the agroalerts API.
//
// Handlers depend on small locally defined interfaces so tests can inject
// fakes. Routes are attached under /v1 by main through
// core.Server.V1RouteRegistrars.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"agroalerts/internal/core"
	"agroalerts/internal/pipeline"
	"agroalerts/internal/types"
)

// ConditionsService fetches current weather for a point.
type ConditionsService interface {
	Current(ctx context.Context, lat, lon float64) (types.CurrentConditions, error)
}

// ProjectionService builds the 7-day projection for every registered field.
type ProjectionService interface {
	NextWeek(ctx context.Context) ([]pipeline.FieldProjection, error)
}

// ForecastHandler serves the current-conditions and next-week endpoints.
type ForecastHandler struct {
	conditions ConditionsService
	projection ProjectionService
	validator  *core.Validator
	logger     *slog.Logger

	// nextWeek coalesces concurrent projection requests into one provider pass.
	nextWeek singleflight.Group
}

// NewForecastHandler creates a ForecastHandler.
func NewForecastHandler(
	conditions ConditionsService,
	projection ProjectionService,
	val *core.Validator,
	logger *slog.Logger,
) *ForecastHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForecastHandler{
		conditions: conditions,
		projection: projection,
		validator:  val,
		logger:     logger,
	}
}

// RegisterRoutes mounts the forecast endpoints, normally under /v1/forecast.
func (h *ForecastHandler) RegisterRoutes(r chi.Router) {
	r.Get("/current", h.HandleCurrent)
	r.Get("/next-week", h.HandleNextWeek)
}

type currentQuery struct {
	Lat string `query:"lat" validate:"required,latitude"`
	Lon string `query:"lon" validate:"required,longitude"`
}

// HandleCurrent handles GET /v1/forecast/current?lat=&lon=.
func (h *ForecastHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	q := currentQuery{
		Lat: r.URL.Query().Get("lat"),
		Lon: r.URL.Query().Get("lon"),
	}
	if err := h.validator.ValidateStruct(q); err != nil {
		core.Error(w, r, err)
		return
	}
	// Both parse: the latitude and longitude tags only accept decimal numbers.
	lat, _ := strconv.ParseFloat(q.Lat, 64)
	lon, _ := strconv.ParseFloat(q.Lon, 64)

	cur, err := h.conditions.Current(r.Context(), lat, lon)
	if err != nil {
		h.logger.WarnContext(r.Context(), "current conditions lookup failed",
			"lat", lat, "lon", lon, "error", err)
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=300")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cur})
}

// HandleNextWeek handles GET /v1/forecast/next-week. Any provider failure
// fails the whole request; partial projections are never returned.
func (h *ForecastHandler) HandleNextWeek(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err, shared := h.nextWeek.Do("next-week", func() (any, error) {
		// The shared call outlives the cancellation of any single caller.
		return h.projection.NextWeek(context.WithoutCancel(ctx))
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if shared {
		h.logger.DebugContext(ctx, "next-week projection shared with a concurrent request")
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: v.([]pipeline.FieldProjection)})
}
