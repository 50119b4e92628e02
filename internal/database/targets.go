package database

import (
	"database/sql"
	"time"

	"tkremote/internal/model"
)

const targetColumns = `id, username, address, valid, date_added, last_checked, last_config, pending_seconds, pending_op`

func scanTarget(row interface{ Scan(...any) error }) (*model.Target, error) {
	t := &model.Target{}
	var lastChecked sql.NullTime
	var lastConfig, pendingOp sql.NullString
	var pendingSeconds sql.NullInt64
	err := row.Scan(&t.ID, &t.Username, &t.Address, &t.Valid, &t.DateAdded,
		&lastChecked, &lastConfig, &pendingSeconds, &pendingOp)
	if err != nil {
		return nil, err
	}
	if lastChecked.Valid {
		t.LastChecked = &lastChecked.Time
	}
	t.LastConfig = lastConfig.String
	if pendingSeconds.Valid {
		s := int(pendingSeconds.Int64)
		t.PendingSeconds = &s
	}
	t.PendingOp = pendingOp.String
	return t, nil
}

func (db *DB) CreateTarget(username, address string) (*model.Target, error) {
	row := db.conn.QueryRow(
		`INSERT INTO targets (username, address) VALUES ($1, $2) RETURNING `+targetColumns,
		username, address,
	)
	return scanTarget(row)
}

func (db *DB) GetTarget(id int64) (*model.Target, error) {
	t, err := scanTarget(db.conn.QueryRow(
		`SELECT `+targetColumns+` FROM targets WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (db *DB) FindTarget(username, address string) (*model.Target, error) {
	t, err := scanTarget(db.conn.QueryRow(
		`SELECT `+targetColumns+` FROM targets WHERE username = $1 AND address = $2`,
		username, address))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (db *DB) ListTargets() ([]model.Target, error) {
	rows, err := db.conn.Query(`SELECT ` + targetColumns + ` FROM targets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []model.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, *t)
	}
	return targets, rows.Err()
}

// DeleteTarget removes a target; usage history, quota and windows cascade.
func (db *DB) DeleteTarget(id int64) error {
	_, err := db.conn.Exec(`DELETE FROM targets WHERE id = $1`, id)
	return err
}

// TouchTargetChecked records that a check happened without asserting
// anything about validity. Used for transient failures so an offline
// machine keeps its last known state.
func (db *DB) TouchTargetChecked(id int64) error {
	_, err := db.conn.Exec(`UPDATE targets SET last_checked = NOW() WHERE id = $1`, id)
	return err
}

// SetTargetValid is the authoritative validity update used by the initial
// (and on-demand) validation at the UI boundary.
func (db *DB) SetTargetValid(id int64, valid bool, lastConfig string) error {
	_, err := db.conn.Exec(
		`UPDATE targets SET valid = $2, last_config = NULLIF($3, ''), last_checked = NOW() WHERE id = $1`,
		id, valid, lastConfig,
	)
	return err
}

// SetPendingAdjustment queues a signed time delta to be applied by the
// next reconciliation pass, replacing any previously queued one.
func (db *DB) SetPendingAdjustment(id int64, seconds int, op string) error {
	_, err := db.conn.Exec(
		`UPDATE targets SET pending_seconds = $2, pending_op = $3 WHERE id = $1`,
		id, seconds, op,
	)
	return err
}

func (db *DB) ClearPendingAdjustment(id int64) error {
	_, err := db.conn.Exec(
		`UPDATE targets SET pending_seconds = NULL, pending_op = NULL WHERE id = $1`, id)
	return err
}

// PendingAdjustment reads the queued delta fresh from the store; the
// reconciler must never act on a value cached from an earlier tick.
func (db *DB) PendingAdjustment(id int64) (seconds int, op string, ok bool, err error) {
	var pendingSeconds sql.NullInt64
	var pendingOp sql.NullString
	err = db.conn.QueryRow(
		`SELECT pending_seconds, pending_op FROM targets WHERE id = $1`, id,
	).Scan(&pendingSeconds, &pendingOp)
	if err != nil {
		return 0, "", false, err
	}
	if !pendingSeconds.Valid || !pendingOp.Valid {
		return 0, "", false, nil
	}
	return int(pendingSeconds.Int64), pendingOp.String, true, nil
}

// CommitStatus stores a successful status refresh atomically: the parsed
// snapshot, the validity flag and today's usage record move together so a
// failure cannot leave the two halves disagreeing.
func (db *DB) CommitStatus(id int64, rawConfig string, timeSpent int, day time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		`UPDATE targets SET valid = TRUE, last_config = $2, last_checked = NOW() WHERE id = $1`,
		id, rawConfig,
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := upsertUsage(tx, id, day, timeSpent); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
