package db

import (
	"context"
	"encoding/json"
	"time"

	"agroalerts/internal/types"
)

// HistoryDays is how far back UpsertAlerts looks for previously stored rows
// when reporting changes.
const HistoryDays = 7

// UpsertResult reports the outcome of an UpsertAlerts call. Changes lists the
// rows that were new or differed from what was stored before the write.
type UpsertResult struct {
	Upserted int
	Changes  []types.AlertChange
}

// ChangedCount is the number of new or modified rows.
func (r UpsertResult) ChangedCount() int {
	return len(r.Changes)
}

// AlertRepository persists reconciled alerts in the alertas table, keyed by
// (uid_parcel, fecha).
type AlertRepository struct {
	db Pool
}

// NewAlertRepository creates an AlertRepository backed by a pool that can
// open transactions.
func NewAlertRepository(db Pool) *AlertRepository {
	return &AlertRepository{db: db}
}

// UpsertAlerts writes records in one transaction. Each row is inserted or, on
// a key conflict, has all four alert columns replaced. Before writing, the
// trailing HistoryDays of stored rows for the batch's fields are read so the
// result can report which rows are new or changed. Every such change is also
// queued in alert_outbox in the same transaction; PendingChanges and
// MarkPublished drain it.
func (r *AlertRepository) UpsertAlerts(ctx context.Context, records []types.AlertRecord) (UpsertResult, error) {
	if len(records) == 0 {
		return UpsertResult{}, nil
	}

	fieldIDs, from, to := batchScope(records)
	var result UpsertResult

	err := RunInTx(ctx, r.db, func(tx DBTX) error {
		history, err := loadHistory(ctx, tx, fieldIDs, from.AddDate(0, 0, -HistoryDays), to)
		if err != nil {
			return err
		}

		for i := range records {
			rec := &records[i]
			_, err := tx.Exec(ctx,
				`INSERT INTO alertas (uid_parcel, fecha, alerta_helada, alerta_inundacion, alerta_plaga, alerta_sequia)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (uid_parcel, fecha) DO UPDATE SET
				   alerta_helada = EXCLUDED.alerta_helada,
				   alerta_inundacion = EXCLUDED.alerta_inundacion,
				   alerta_plaga = EXCLUDED.alerta_plaga,
				   alerta_sequia = EXCLUDED.alerta_sequia`,
				rec.FieldID,
				types.Day(rec.Date),
				nullableString(rec.Frost),
				nullableString(rec.Flood),
				nullableString(rec.Pest),
				nullableString(rec.Drought),
			)
			if err != nil {
				return types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to upsert alert", err,
					map[string]any{"field_id": rec.FieldID, "date": rec.Date.Format(types.DateLayout)})
			}

			var change *types.AlertChange
			prev, seen := history[rec.Key()]
			switch {
			case !seen:
				change = &types.AlertChange{Current: *rec}
			case !prev.SameAlerts(*rec):
				p := prev
				change = &types.AlertChange{Previous: &p, Current: *rec}
			}
			if change == nil {
				continue
			}
			if err := enqueueChange(ctx, tx, *change); err != nil {
				return err
			}
			result.Changes = append(result.Changes, *change)
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	result.Upserted = len(records)
	return result, nil
}

// OutboxEntry is a committed alert change that has not been published yet.
type OutboxEntry struct {
	ID     int64
	Change types.AlertChange
}

// enqueueChange records change in alert_outbox inside the upsert transaction,
// so a change is stored exactly when its row is.
func enqueueChange(ctx context.Context, tx DBTX, change types.AlertChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode alert change", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO alert_outbox (uid_parcel, fecha, payload, created_at)
		 VALUES ($1, $2, $3, NOW())`,
		change.Current.FieldID,
		types.Day(change.Current.Date),
		payload,
	)
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrCodeInternalDB, "failed to enqueue alert change", err,
			map[string]any{"field_id": change.Current.FieldID, "date": change.Current.Date.Format(types.DateLayout)})
	}
	return nil
}

// PendingChanges returns up to limit unpublished changes, oldest first.
func (r *AlertRepository) PendingChanges(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, payload
		 FROM alert_outbox
		 WHERE published_at IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query alert outbox", err)
	}
	defer rows.Close()

	out := make([]OutboxEntry, 0)
	for rows.Next() {
		var (
			entry   OutboxEntry
			payload []byte
		)
		if err := rows.Scan(&entry.ID, &payload); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert outbox entry", err)
		}
		if err := json.Unmarshal(payload, &entry.Change); err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeInternalUnexpected, "failed to decode alert change", err,
				map[string]any{"outbox_id": entry.ID})
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating alert outbox", err)
	}
	return out, nil
}

// MarkPublished stamps published_at on the given outbox entries.
func (r *AlertRepository) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE alert_outbox SET published_at = NOW()
		 WHERE id = ANY($1) AND published_at IS NULL`,
		ids,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark alert changes published", err)
	}
	return nil
}

// ListAlerts returns the stored alerts for one field within [from, to],
// ordered by date.
func (r *AlertRepository) ListAlerts(ctx context.Context, fieldID string, from, to time.Time) ([]types.AlertRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT uid_parcel, fecha, alerta_helada, alerta_inundacion, alerta_plaga, alerta_sequia
		 FROM alertas
		 WHERE uid_parcel = $1 AND fecha BETWEEN $2 AND $3
		 ORDER BY fecha`,
		fieldID,
		types.Day(from),
		types.Day(to),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query alerts", err)
	}
	defer rows.Close()

	out := make([]types.AlertRecord, 0)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating alerts", err)
	}
	return out, nil
}

func loadHistory(ctx context.Context, tx DBTX, fieldIDs []string, from, to time.Time) (map[types.FieldDate]types.AlertRecord, error) {
	rows, err := tx.Query(ctx,
		`SELECT uid_parcel, fecha, alerta_helada, alerta_inundacion, alerta_plaga, alerta_sequia
		 FROM alertas
		 WHERE uid_parcel = ANY($1) AND fecha BETWEEN $2 AND $3`,
		fieldIDs,
		from,
		to,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read alert history", err)
	}
	defer rows.Close()

	history := make(map[types.FieldDate]types.AlertRecord)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		history[rec.Key()] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating alert history", err)
	}
	return history, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (types.AlertRecord, error) {
	var (
		rec                        types.AlertRecord
		frost, flood, pest, sequia *string
	)
	if err := row.Scan(&rec.FieldID, &rec.Date, &frost, &flood, &pest, &sequia); err != nil {
		return types.AlertRecord{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert", err)
	}
	rec.Date = types.Day(rec.Date)
	rec.Frost = fromNullable[types.AlertLevel](frost)
	rec.Flood = fromNullable[types.AlertLevel](flood)
	rec.Pest = fromNullable[types.AlertLevel](pest)
	rec.Drought = fromNullable[types.DroughtRisk](sequia)
	return rec, nil
}

// batchScope returns the distinct field IDs of records in first-appearance
// order and the earliest and latest record dates.
func batchScope(records []types.AlertRecord) ([]string, time.Time, time.Time) {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	from, to := types.Day(records[0].Date), types.Day(records[0].Date)

	for _, rec := range records {
		if _, ok := seen[rec.FieldID]; !ok {
			seen[rec.FieldID] = struct{}{}
			ids = append(ids, rec.FieldID)
		}
		d := types.Day(rec.Date)
		if d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}
	return ids, from, to
}
