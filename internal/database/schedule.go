package database

import (
	"database/sql"

	"tkremote/internal/model"
)

// GetWeeklyQuota returns the per-weekday budgets for a target, or nil when
// none has been configured yet.
func (db *DB) GetWeeklyQuota(targetID int64) (*model.WeeklyQuota, error) {
	q := &model.WeeklyQuota{TargetID: targetID}
	var syncedAt sql.NullTime
	err := db.conn.QueryRow(
		`SELECT mon, tue, wed, thu, fri, sat, sun, synced, modified_at, synced_at
		 FROM weekly_quotas WHERE target_id = $1`, targetID,
	).Scan(&q.Seconds[0], &q.Seconds[1], &q.Seconds[2], &q.Seconds[3],
		&q.Seconds[4], &q.Seconds[5], &q.Seconds[6],
		&q.Synced, &q.ModifiedAt, &syncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if syncedAt.Valid {
		q.SyncedAt = &syncedAt.Time
	}
	return q, nil
}

// UpsertWeeklyQuota stores an edited quota and marks it unsynced so the
// next reconciliation pass pushes it.
func (db *DB) UpsertWeeklyQuota(targetID int64, seconds [7]int) error {
	_, err := db.conn.Exec(
		`INSERT INTO weekly_quotas (target_id, mon, tue, wed, thu, fri, sat, sun, synced, modified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, NOW())
		 ON CONFLICT (target_id) DO UPDATE SET
		   mon = $2, tue = $3, wed = $4, thu = $5, fri = $6, sat = $7, sun = $8,
		   synced = FALSE, modified_at = NOW()`,
		targetID, seconds[0], seconds[1], seconds[2], seconds[3], seconds[4], seconds[5], seconds[6],
	)
	return err
}

// MarkQuotaSynced is called by the reconciler only, after a successful
// push to the remote agent.
func (db *DB) MarkQuotaSynced(targetID int64) error {
	_, err := db.conn.Exec(
		`UPDATE weekly_quotas SET synced = TRUE, synced_at = NOW() WHERE target_id = $1`,
		targetID,
	)
	return err
}

// GetDayWindows returns the seven access windows for a target, indexed by
// ISO weekday minus one. Weekdays without a stored row come back disabled.
func (db *DB) GetDayWindows(targetID int64) ([7]model.DayWindow, error) {
	var windows [7]model.DayWindow
	for i := range windows {
		windows[i] = model.DayWindow{TargetID: targetID, Weekday: i + 1}
	}

	rows, err := db.conn.Query(
		`SELECT weekday, start_hour, start_minute, end_hour, end_minute, enabled, synced, modified_at, synced_at
		 FROM day_windows WHERE target_id = $1 ORDER BY weekday`, targetID,
	)
	if err != nil {
		return windows, err
	}
	defer rows.Close()

	for rows.Next() {
		var w model.DayWindow
		var syncedAt sql.NullTime
		w.TargetID = targetID
		if err := rows.Scan(&w.Weekday, &w.StartHour, &w.StartMinute, &w.EndHour, &w.EndMinute,
			&w.Enabled, &w.Synced, &w.ModifiedAt, &syncedAt); err != nil {
			return windows, err
		}
		if syncedAt.Valid {
			w.SyncedAt = &syncedAt.Time
		}
		if w.Weekday >= 1 && w.Weekday <= 7 {
			windows[w.Weekday-1] = w
		}
	}
	return windows, rows.Err()
}

// ReplaceDayWindows overwrites the stored windows for the given weekdays
// and marks them unsynced, all in one transaction.
func (db *DB) ReplaceDayWindows(targetID int64, windows []model.DayWindow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	for _, w := range windows {
		if _, err := tx.Exec(
			`INSERT INTO day_windows
			   (target_id, weekday, start_hour, start_minute, end_hour, end_minute, enabled, synced, modified_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NOW())
			 ON CONFLICT (target_id, weekday) DO UPDATE SET
			   start_hour = $3, start_minute = $4, end_hour = $5, end_minute = $6,
			   enabled = $7, synced = FALSE, modified_at = NOW()`,
			targetID, w.Weekday, w.StartHour, w.StartMinute, w.EndHour, w.EndMinute, w.Enabled,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// MarkWindowsSynced clears the unsynced flag on all of a target's windows.
// The reconciler calls it only after a push with no failed days; a partial
// push stays unsynced and is retried whole on the next pass.
func (db *DB) MarkWindowsSynced(targetID int64) error {
	_, err := db.conn.Exec(
		`UPDATE day_windows SET synced = TRUE, synced_at = NOW() WHERE target_id = $1`,
		targetID,
	)
	return err
}

// HasUnsyncedWindows reports whether any of the target's windows awaits a
// push.
func (db *DB) HasUnsyncedWindows(targetID int64) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM day_windows WHERE target_id = $1 AND NOT synced`, targetID,
	).Scan(&count)
	return count > 0, err
}
