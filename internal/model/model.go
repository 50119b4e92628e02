package model

import "time"

// Target is a managed account on a remote machine running the time agent.
type Target struct {
	ID          int64
	Username    string
	Address     string
	Valid       bool
	DateAdded   time.Time
	LastChecked *time.Time
	LastConfig  string // JSON snapshot of the last parsed agent report

	// At most one queued time adjustment, applied by the reconciler.
	PendingSeconds *int
	PendingOp      string // "+" or "-", empty when nothing is queued
}

// UsageRecord holds the seconds a target consumed on one calendar day.
// There is at most one record per (target, day).
type UsageRecord struct {
	ID       int64
	TargetID int64
	Day      time.Time
	Seconds  int
}

// WeeklyQuota is the per-weekday allowed budget in seconds. Zero disables
// the day. Edits mark the quota unsynced; only a successful push to the
// remote agent clears the flag again.
type WeeklyQuota struct {
	TargetID   int64
	Seconds    [7]int // index 0 = ISO weekday 1 (Monday)
	Synced     bool
	ModifiedAt time.Time
	SyncedAt   *time.Time
}

// DayWindow is the daily access window for one ISO weekday (1..7), a
// half-open [start, end) interval that must lie within a single day.
type DayWindow struct {
	TargetID    int64
	Weekday     int
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
	Enabled     bool
	Synced      bool
	ModifiedAt  time.Time
	SyncedAt    *time.Time
}

type User struct {
	ID         int64
	Username   string
	PassHash   string
	Role       string
	Active     bool
	AuthSource string // "local" or "ldap"
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Session struct {
	Token     string
	CSRFToken string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type AuditEntry struct {
	ID         int64
	Username   string
	Action     string
	TargetID   int64
	TargetName string
	Detail     string
	IPAddress  string
	CreatedAt  time.Time
}
