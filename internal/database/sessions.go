package database

import (
	"database/sql"

	"tkremote/internal/model"
)

func (db *DB) CreateSession(s model.Session) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (token, csrf_token, username, expires_at) VALUES ($1, $2, $3, $4)",
		s.Token, s.CSRFToken, s.Username, s.ExpiresAt,
	)
	return err
}

// SessionByToken returns the live session for a token, or nil when the
// token is unknown or the session has expired. Expiry is decided by the
// database clock so every server instance agrees on it.
func (db *DB) SessionByToken(token string) (*model.Session, error) {
	s := model.Session{Token: token}
	err := db.conn.QueryRow(
		"SELECT csrf_token, username, created_at, expires_at FROM sessions WHERE token = $1 AND expires_at > NOW()",
		token,
	).Scan(&s.CSRFToken, &s.Username, &s.CreatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) DeleteSession(token string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE token = $1", token)
	return err
}

func (db *DB) PurgeExpiredSessions() (int64, error) {
	res, err := db.conn.Exec("DELETE FROM sessions WHERE expires_at < NOW()")
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
