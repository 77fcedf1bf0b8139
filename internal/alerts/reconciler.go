// Package alerts merges meteorological and drought outputs into the
// persisted alert rows.
package alerts

import (
	"sort"
	"time"

	"agroalerts/internal/types"
)

// DefaultLookbackDays is how many days before today the default window
// reaches back.
const DefaultLookbackDays = 4

// Window is an inclusive range of UTC calendar dates.
type Window struct {
	From time.Time
	To   time.Time
}

// DefaultWindow returns [today-DefaultLookbackDays, today] for now in UTC.
func DefaultWindow(now time.Time) Window {
	return WindowEnding(now, DefaultLookbackDays)
}

// WindowEnding returns the window of lookbackDays before now's date through
// that date.
func WindowEnding(now time.Time, lookbackDays int) Window {
	today := types.Day(now)
	return Window{From: today.AddDate(0, 0, -lookbackDays), To: today}
}

// Contains reports whether t's calendar date falls inside the window.
func (w Window) Contains(t time.Time) bool {
	d := types.Day(t)
	return !d.Before(types.Day(w.From)) && !d.After(types.Day(w.To))
}

// Reconcile outer-joins scored meteo rows with drought rows on (field, date)
// inside window. Drought-only keys get nil meteo levels; meteo-only keys keep
// a nil drought risk. Rows with no alert at all are dropped and the result is
// sorted by field, then date.
func Reconcile(meteo []types.ScoredRow, drought []types.DroughtRow, window Window) []types.AlertRecord {
	merged := make(map[types.FieldDate]*types.AlertRecord)

	get := func(fieldID string, date time.Time) *types.AlertRecord {
		key := types.KeyOf(fieldID, date)
		rec, ok := merged[key]
		if !ok {
			rec = &types.AlertRecord{FieldID: fieldID, Date: types.Day(date)}
			merged[key] = rec
		}
		return rec
	}

	for _, row := range meteo {
		if !window.Contains(row.Date) {
			continue
		}
		rec := get(row.FieldID, row.Date)
		rec.Frost, rec.Flood, rec.Pest = row.Frost, row.Flood, row.Pest
	}

	for _, row := range drought {
		if !window.Contains(row.Date) {
			continue
		}
		rec := get(row.FieldID, row.Date)
		if row.Risk != "" {
			rec.Drought = types.Risk(row.Risk)
		}
	}

	out := make([]types.AlertRecord, 0, len(merged))
	for _, rec := range merged {
		if rec.IsEmpty() {
			continue
		}
		out = append(out, *rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FieldID != out[j].FieldID {
			return out[i].FieldID < out[j].FieldID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
