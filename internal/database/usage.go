package database

import (
	"database/sql"
	"time"
)

// upsertUsage writes the seconds consumed by a target on one day,
// overwriting any existing record. The (target, day) pair is unique so
// repeated refreshes never accumulate. Runs inside the caller's
// transaction; see CommitStatus.
func upsertUsage(tx *sql.Tx, targetID int64, day time.Time, seconds int) error {
	_, err := tx.Exec(
		`INSERT INTO usage_records (target_id, day, seconds) VALUES ($1, $2, $3)
		 ON CONFLICT (target_id, day) DO UPDATE SET seconds = EXCLUDED.seconds`,
		targetID, day, seconds,
	)
	return err
}

// RecentUsage returns per-day seconds for the last n days including today,
// with zero entries for days that have no record, keyed by ISO date.
func (db *DB) RecentUsage(targetID int64, days int) (map[string]int, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(days - 1))

	usage := make(map[string]int, days)
	for i := 0; i < days; i++ {
		usage[start.AddDate(0, 0, i).Format("2006-01-02")] = 0
	}

	rows, err := db.conn.Query(
		`SELECT day, seconds FROM usage_records
		 WHERE target_id = $1 AND day >= $2 AND day <= $3 ORDER BY day`,
		targetID, start, today,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day time.Time
		var seconds int
		if err := rows.Scan(&day, &seconds); err != nil {
			return nil, err
		}
		usage[day.Format("2006-01-02")] = seconds
	}
	return usage, rows.Err()
}
