package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"agroalerts/internal/db"
	"agroalerts/internal/external"
	"agroalerts/internal/types"
)

// ============================================================
// Mock Implementations
// ============================================================

type mockFieldLister struct {
	fields []types.Field
	err    error
}

func (m *mockFieldLister) List(_ context.Context) ([]types.Field, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.fields, nil
}

// mockWeather serves canned series per field. Errors take precedence.
type mockWeather struct {
	series   map[string][]types.WeatherDailyRecord
	errs     map[string]error
	calls    []string
	pastDays []int
}

func (m *mockWeather) DailySeries(_ context.Context, field types.Field, pastDays int) ([]types.WeatherDailyRecord, error) {
	m.calls = append(m.calls, field.ID)
	m.pastDays = append(m.pastDays, pastDays)
	if err := m.errs[field.ID]; err != nil {
		return nil, err
	}
	return m.series[field.ID], nil
}

type mockArchive struct {
	days  map[string][]types.ArchiveDailyRecord
	errs  map[string]error
	from  time.Time
	to    time.Time
	calls int
}

func (m *mockArchive) ArchiveDays(_ context.Context, field types.Field, from, to time.Time) ([]types.ArchiveDailyRecord, error) {
	m.calls++
	m.from, m.to = from, to
	if err := m.errs[field.ID]; err != nil {
		return nil, err
	}
	return m.days[field.ID], nil
}

type mockConditions struct {
	readings map[[2]float64]types.CurrentConditions
	errs     map[[2]float64]error
}

func (m *mockConditions) Current(_ context.Context, lat, lon float64) (types.CurrentConditions, error) {
	key := [2]float64{lat, lon}
	if err := m.errs[key]; err != nil {
		return types.CurrentConditions{}, err
	}
	return m.readings[key], nil
}

type mockVegetationSource struct {
	observations []types.VegetationIndexRecord
	err          error
	polygons     []external.FieldPolygon
	from, to     time.Time
	maxCloud     int
	calls        int
}

func (m *mockVegetationSource) Indices(_ context.Context, polygons []external.FieldPolygon, from, to time.Time, maxCloudPct int) ([]types.VegetationIndexRecord, error) {
	m.calls++
	m.polygons, m.from, m.to, m.maxCloud = polygons, from, to, maxCloudPct
	if m.err != nil {
		return nil, m.err
	}
	return m.observations, nil
}

// mockVegetationStore backs both VegetationHistory and VegetationWriter.
type mockVegetationStore struct {
	records   []types.VegetationIndexRecord
	since     time.Time
	listErr   error
	insertErr error
	inserted  []types.VegetationIndexRecord
}

func (m *mockVegetationStore) ListSince(_ context.Context, since time.Time) ([]types.VegetationIndexRecord, error) {
	m.since = since
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.records, nil
}

func (m *mockVegetationStore) Insert(_ context.Context, records []types.VegetationIndexRecord) (int, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.inserted = append(m.inserted, records...)
	return len(records), nil
}

// memAlertStore mimics AlertRepository: full-replace upsert with change
// detection against what it already holds, and an outbox of changes that
// stays pending until MarkPublished.
type memAlertStore struct {
	rows    map[types.FieldDate]types.AlertRecord
	outbox  []db.OutboxEntry
	marked  map[int64]bool
	nextID  int64
	err     error
	markErr error
	calls   int
}

func newMemAlertStore() *memAlertStore {
	return &memAlertStore{
		rows:   make(map[types.FieldDate]types.AlertRecord),
		marked: make(map[int64]bool),
	}
}

func (m *memAlertStore) UpsertAlerts(_ context.Context, records []types.AlertRecord) (db.UpsertResult, error) {
	m.calls++
	if m.err != nil {
		return db.UpsertResult{}, m.err
	}
	var res db.UpsertResult
	for _, rec := range records {
		prev, ok := m.rows[rec.Key()]
		switch {
		case !ok:
			res.Changes = append(res.Changes, types.AlertChange{Current: rec})
		case !prev.SameAlerts(rec):
			p := prev
			res.Changes = append(res.Changes, types.AlertChange{Previous: &p, Current: rec})
		}
		m.rows[rec.Key()] = rec
		res.Upserted++
	}
	for _, change := range res.Changes {
		m.nextID++
		m.outbox = append(m.outbox, db.OutboxEntry{ID: m.nextID, Change: change})
	}
	return res, nil
}

func (m *memAlertStore) PendingChanges(_ context.Context, limit int) ([]db.OutboxEntry, error) {
	out := make([]db.OutboxEntry, 0)
	for _, entry := range m.outbox {
		if len(out) == limit {
			break
		}
		if !m.marked[entry.ID] {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memAlertStore) MarkPublished(_ context.Context, ids []int64) error {
	if m.markErr != nil {
		return m.markErr
	}
	for _, id := range ids {
		m.marked[id] = true
	}
	return nil
}

func (m *memAlertStore) pending() int {
	n := 0
	for _, entry := range m.outbox {
		if !m.marked[entry.ID] {
			n++
		}
	}
	return n
}

func (m *memAlertStore) get(fieldID string, date time.Time) (types.AlertRecord, bool) {
	rec, ok := m.rows[types.KeyOf(fieldID, date)]
	return rec, ok
}

type mockArchiveStore struct {
	inserted []types.ArchiveDailyRecord
	err      error
}

func (m *mockArchiveStore) Insert(_ context.Context, records []types.ArchiveDailyRecord) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.inserted = append(m.inserted, records...)
	return len(records), nil
}

type mockConditionsStore struct {
	stored []types.CurrentConditions
	err    error
}

func (m *mockConditionsStore) Insert(_ context.Context, c types.CurrentConditions) error {
	if m.err != nil {
		return m.err
	}
	m.stored = append(m.stored, c)
	return nil
}

// mockPublisher accepts everything, or, when err is set, the first accept
// changes of a call before failing.
type mockPublisher struct {
	published []types.AlertChange
	err       error
	accept    int
	calls     int
}

func (m *mockPublisher) Publish(_ context.Context, changes []types.AlertChange) (int, error) {
	m.calls++
	if m.err != nil {
		n := min(m.accept, len(changes))
		m.published = append(m.published, changes[:n]...)
		return n, m.err
	}
	m.published = append(m.published, changes...)
	return len(changes), nil
}

type mockRecorder struct {
	changed []int
}

func (m *mockRecorder) RecordRun(context.Context, string, string, time.Duration) {}

func (m *mockRecorder) RecordAlertsChanged(_ context.Context, count int) {
	m.changed = append(m.changed, count)
}

type countingSkips struct {
	byTask map[string]int
}

func (c *countingSkips) FieldSkipped(task string) {
	if c.byTask == nil {
		c.byTask = make(map[string]int)
	}
	c.byTask[task]++
}

// ============================================================
// Fixtures
// ============================================================

var testNow = time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

var errUpstream = types.NewAppError(types.ErrCodeUpstreamWeather, "forecast returned 503", errors.New("503"))

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func field(id string, coords ...[2]float64) types.Field {
	if len(coords) == 0 {
		coords = [][2]float64{{40.0, -3.0}, {40.0, -2.9}, {40.1, -2.9}}
	}
	return types.Field{ID: id, Coordinates: coords}
}

// series builds n consecutive mild days for fieldID ending on end's date.
// day, when set, adjusts individual records.
func series(fieldID string, end time.Time, n int, day func(i int, r *types.WeatherDailyRecord)) []types.WeatherDailyRecord {
	start := types.Day(end).AddDate(0, 0, -(n - 1))
	out := make([]types.WeatherDailyRecord, n)
	for i := range out {
		out[i] = types.WeatherDailyRecord{
			FieldID:     fieldID,
			Date:        start.AddDate(0, 0, i),
			TempMax:     18,
			TempMin:     9,
			HumidityMax: 60,
			HumidityMin: 35,
		}
		if day != nil {
			day(i, &out[i])
		}
	}
	return out
}

// frostSeries is ten cold days ending on testNow with a hard frost on the last.
func frostSeries(fieldID string) []types.WeatherDailyRecord {
	return series(fieldID, testNow, 10, func(i int, r *types.WeatherDailyRecord) {
		r.TempMax, r.TempMin = 4, 1
		if i == 9 {
			r.TempMin = -2
		}
	})
}
