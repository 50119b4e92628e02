package database

import (
	"database/sql"

	"tkremote/internal/model"
)

func (db *DB) LogAudit(entry model.AuditEntry) error {
	var targetID any
	if entry.TargetID != 0 {
		targetID = entry.TargetID
	}
	_, err := db.conn.Exec(
		`INSERT INTO audit_log (username, action, target_id, detail, ip_address)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.Username, entry.Action, targetID, entry.Detail, entry.IPAddress,
	)
	return err
}

func (db *DB) ListAuditLog(limit, offset int) ([]model.AuditEntry, int, error) {
	var total int
	_ = db.conn.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&total)

	rows, err := db.conn.Query(
		`SELECT a.id, a.username, a.action, a.target_id, t.username, a.detail, a.ip_address, a.created_at
		 FROM audit_log a
		 LEFT JOIN targets t ON a.target_id = t.id
		 ORDER BY a.created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var targetID sql.NullInt64
		var targetName, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &targetID, &targetName,
			&detail, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.TargetID = targetID.Int64
		e.TargetName = targetName.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
