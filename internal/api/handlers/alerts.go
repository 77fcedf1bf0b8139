package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"agroalerts/internal/core"
	"agroalerts/internal/types"
)

const (
	// DefaultHistoryDays is the span returned when from is omitted. The
	// alert job never writes rows past today, so to defaults to today.
	DefaultHistoryDays = 30
	// MaxHistoryDays bounds a single history request.
	MaxHistoryDays = 366
)

// FieldGetter looks up one registered field.
type FieldGetter interface {
	Get(ctx context.Context, id string) (types.Field, error)
}

// AlertReader reads persisted alert rows.
type AlertReader interface {
	ListAlerts(ctx context.Context, fieldID string, from, to time.Time) ([]types.AlertRecord, error)
}

// AlertHandler serves the persisted alert history of a field.
type AlertHandler struct {
	fields    FieldGetter
	alerts    AlertReader
	validator *core.Validator
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewAlertHandler creates an AlertHandler. A nil clock uses the real clock.
func NewAlertHandler(fields FieldGetter, alerts AlertReader, val *core.Validator, clock clockwork.Clock, logger *slog.Logger) *AlertHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertHandler{
		fields:    fields,
		alerts:    alerts,
		validator: val,
		clock:     clock,
		logger:    logger,
	}
}

// RegisterRoutes mounts the alert endpoints, normally under /v1/fields.
func (h *AlertHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{fieldID}/alerts", h.HandleList)
}

type historyQuery struct {
	FieldID string `query:"field_id" validate:"required"`
	From    string `query:"from" validate:"omitempty,date"`
	To      string `query:"to" validate:"omitempty,date"`
}

// FieldAlerts is the response body of the history endpoint.
type FieldAlerts struct {
	FieldID string              `json:"field_id"`
	From    string              `json:"from"`
	To      string              `json:"to"`
	Alerts  []types.AlertRecord `json:"alerts"`
}

// HandleList handles GET /v1/fields/{fieldID}/alerts?from=&to=.
//
// Both bounds are inclusive calendar dates. An omitted to is today and an
// omitted from is DefaultHistoryDays before to.
func (h *AlertHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := historyQuery{
		FieldID: chi.URLParam(r, "fieldID"),
		From:    r.URL.Query().Get("from"),
		To:      r.URL.Query().Get("to"),
	}
	if err := h.validator.ValidateStruct(q); err != nil {
		core.Error(w, r, err)
		return
	}

	from, to, err := h.window(q)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	field, err := h.fields.Get(r.Context(), q.FieldID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	rows, err := h.alerts.ListAlerts(r.Context(), field.ID, from, to)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list alerts", "field_id", field.ID, "error", err)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: FieldAlerts{
		FieldID: field.ID,
		From:    from.Format(types.DateLayout),
		To:      to.Format(types.DateLayout),
		Alerts:  rows,
	}})
}

func (h *AlertHandler) window(q historyQuery) (from, to time.Time, err error) {
	today := types.Day(h.clock.Now())
	to = today
	if q.To != "" {
		// Format already checked by the date tag.
		to, _ = time.Parse(types.DateLayout, q.To)
	}
	from = to.AddDate(0, 0, -DefaultHistoryDays)
	if q.From != "" {
		from, _ = time.Parse(types.DateLayout, q.From)
	}

	if from.After(to) {
		return from, to, types.NewAppErrorWithDetails(types.ErrCodeValidationTimeWindow,
			"from must not be after to", nil,
			map[string]any{"from": q.From, "to": q.To})
	}
	if to.Sub(from) > MaxHistoryDays*24*time.Hour {
		return from, to, types.NewAppErrorWithDetails(types.ErrCodeValidationTimeWindow,
			"requested window exceeds the maximum span", nil,
			map[string]any{"max_days": MaxHistoryDays})
	}
	return from, to, nil
}
