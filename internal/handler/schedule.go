package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"tkremote/internal/auth"
	"tkremote/internal/database"
	"tkremote/internal/model"
	"tkremote/internal/util"
)

type ScheduleHandler struct {
	db       *database.DB
	sessions *auth.SessionManager
}

func NewScheduleHandler(db *database.DB, sm *auth.SessionManager) *ScheduleHandler {
	return &ScheduleHandler{db: db, sessions: sm}
}

func (h *ScheduleHandler) target(w http.ResponseWriter, r *http.Request) *model.Target {
	id, err := strconv.ParseInt(r.PathValue("targetID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid target id")
		return nil
	}
	t, err := h.db.GetTarget(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "target not found")
		return nil
	}
	return t
}

func (h *ScheduleHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	t := h.target(w, r)
	if t == nil {
		return
	}
	quota, err := h.db.GetWeeklyQuota(t.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{"success": true, "configured": quota != nil}
	if quota != nil {
		resp["seconds"] = quota.Seconds
		resp["synced"] = quota.Synced
		resp["modified_at"] = quota.ModifiedAt
		resp["synced_at"] = quota.SyncedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetQuota stores an edited weekly quota. The edit only marks the quota
// unsynced; the background worker pushes it on its next pass.
func (h *ScheduleHandler) SetQuota(w http.ResponseWriter, r *http.Request) {
	t := h.target(w, r)
	if t == nil {
		return
	}

	var body struct {
		Seconds [7]int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	for i, s := range body.Seconds {
		if s < 0 || s > 86400 {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("weekday %d: seconds must be within 0..86400", i+1))
			return
		}
	}

	if err := h.db.UpsertWeeklyQuota(t.ID, body.Seconds); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.audit(r, "quota_edit", t.ID, fmt.Sprintf("%v", body.Seconds))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "weekly quota saved, it will be pushed on the next pass",
	})
}

func (h *ScheduleHandler) GetWindows(w http.ResponseWriter, r *http.Request) {
	t := h.target(w, r)
	if t == nil {
		return
	}
	windows, err := h.db.GetDayWindows(t.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items := make([]map[string]any, 0, 7)
	for _, win := range windows {
		items = append(items, map[string]any{
			"weekday":      win.Weekday,
			"start_hour":   win.StartHour,
			"start_minute": win.StartMinute,
			"end_hour":     win.EndHour,
			"end_minute":   win.EndMinute,
			"enabled":      win.Enabled,
			"synced":       win.Synced,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "windows": items})
}

// SetWindows replaces the daily access windows. Hour and minute fields are
// contract-checked here; whether a window actually restricts anything is
// decided at push time, where disabled or senseless windows degrade to a
// full free day.
func (h *ScheduleHandler) SetWindows(w http.ResponseWriter, r *http.Request) {
	t := h.target(w, r)
	if t == nil {
		return
	}

	var body struct {
		Windows []struct {
			Weekday     int  `json:"weekday"`
			StartHour   int  `json:"start_hour"`
			StartMinute int  `json:"start_minute"`
			EndHour     int  `json:"end_hour"`
			EndMinute   int  `json:"end_minute"`
			Enabled     bool `json:"enabled"`
		} `json:"windows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if len(body.Windows) == 0 {
		writeError(w, http.StatusBadRequest, "windows must not be empty")
		return
	}

	seen := make(map[int]bool)
	windows := make([]model.DayWindow, 0, len(body.Windows))
	for _, win := range body.Windows {
		if win.Weekday < 1 || win.Weekday > 7 {
			writeError(w, http.StatusBadRequest, "weekday must be within 1..7")
			return
		}
		if seen[win.Weekday] {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("duplicate weekday %d", win.Weekday))
			return
		}
		seen[win.Weekday] = true
		if win.StartHour < 0 || win.StartHour > 23 || win.EndHour < 0 || win.EndHour > 23 ||
			win.StartMinute < 0 || win.StartMinute > 59 || win.EndMinute < 0 || win.EndMinute > 59 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("weekday %d: time out of range", win.Weekday))
			return
		}
		windows = append(windows, model.DayWindow{
			TargetID:    t.ID,
			Weekday:     win.Weekday,
			StartHour:   win.StartHour,
			StartMinute: win.StartMinute,
			EndHour:     win.EndHour,
			EndMinute:   win.EndMinute,
			Enabled:     win.Enabled,
		})
	}

	if err := h.db.ReplaceDayWindows(t.ID, windows); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.audit(r, "windows_edit", t.ID, fmt.Sprintf("%d days", len(windows)))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "access windows saved, they will be pushed on the next pass",
	})
}

func (h *ScheduleHandler) audit(r *http.Request, action string, targetID int64, detail string) {
	username, _ := h.sessions.GetUsername(r)
	_ = h.db.LogAudit(model.AuditEntry{
		Username:  username,
		Action:    action,
		TargetID:  targetID,
		Detail:    detail,
		IPAddress: util.GetClientIP(r),
	})
}
