package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"tkremote/internal/agent"
	"tkremote/internal/auth"
	"tkremote/internal/config"
	"tkremote/internal/database"
	"tkremote/internal/model"
	"tkremote/internal/reconcile"
	"tkremote/internal/util"
)

type TargetHandler struct {
	db       *database.DB
	sessions *auth.SessionManager
	sshCfg   config.SSHConfig
	days     int
	log      zerolog.Logger
}

func NewTargetHandler(db *database.DB, sm *auth.SessionManager, sshCfg config.SSHConfig, dashboardDays int, log zerolog.Logger) *TargetHandler {
	return &TargetHandler{db: db, sessions: sm, sshCfg: sshCfg, days: dashboardDays, log: log}
}

func (h *TargetHandler) client(host string) *agent.Client {
	return agent.NewClient(host, h.sshCfg, h.log)
}

func (h *TargetHandler) targetFromPath(w http.ResponseWriter, r *http.Request) *model.Target {
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

func (h *TargetHandler) List(w http.ResponseWriter, r *http.Request) {
	targets, err := h.db.ListTargets()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items := make([]map[string]any, 0, len(targets))
	for _, t := range targets {
		item := map[string]any{
			"id":           t.ID,
			"username":     t.Username,
			"address":      t.Address,
			"valid":        t.Valid,
			"date_added":   t.DateAdded,
			"last_checked": t.LastChecked,
		}
		if left, ok := configInt(t.LastConfig, agent.KeyTimeLeftDay); ok {
			item["time_left"] = left
			item["time_left_display"] = fmt.Sprintf("%dh %dm", left/3600, (left%3600)/60)
		}
		if t.PendingSeconds != nil && t.PendingOp != "" {
			item["pending_adjustment"] = fmt.Sprintf("%s%d seconds", t.PendingOp, *t.PendingSeconds)
		}
		if usage, err := h.db.RecentUsage(t.ID, h.days); err == nil {
			item["usage"] = usage
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "targets": items})
}

// Create registers a new target and validates it immediately. This first
// check is the only authoritative one: a confirmed "not managed" result
// here leaves the target invalid until a later validation says otherwise.
func (h *TargetHandler) Create(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	username := r.FormValue("username")
	address := r.FormValue("address")
	if username == "" || address == "" {
		writeError(w, http.StatusBadRequest, "both username and address are required")
		return
	}

	if existing, err := h.db.FindTarget(username, address); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if existing != nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("target %s on %s already exists", username, address))
		return
	}

	t, err := h.db.CreateTarget(username, address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	valid, message := h.validateTarget(t)

	h.audit(r, "target_add", t.ID, fmt.Sprintf("%s@%s valid=%v", username, address, valid))

	resp := map[string]any{"success": true, "id": t.ID, "valid": valid}
	if !valid {
		resp["message"] = fmt.Sprintf("target added but validation failed: %s", message)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Validate re-runs the authoritative status check on demand.
func (h *TargetHandler) Validate(w http.ResponseWriter, r *http.Request) {
	t := h.targetFromPath(w, r)
	if t == nil {
		return
	}
	valid, message := h.validateTarget(t)
	h.audit(r, "target_validate", t.ID, fmt.Sprintf("valid=%v", valid))

	if valid {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "valid": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "valid": false, "message": message})
}

// validateTarget fetches status and applies the result authoritatively,
// including the usage record for today on success.
func (h *TargetHandler) validateTarget(t *model.Target) (bool, string) {
	valid, message, report, err := h.client(t.Address).FetchStatus(t.Username)
	if err != nil {
		// At the boundary a transient failure still means "could not be
		// validated"; the reconciler will recover the target later.
		_ = h.db.SetTargetValid(t.ID, false, "")
		return false, err.Error()
	}
	if !valid {
		_ = h.db.SetTargetValid(t.ID, false, "")
		return false, message
	}

	raw, _ := json.Marshal(report)
	if err := h.db.CommitStatus(t.ID, string(raw), agent.IntValue(report, agent.KeyTimeSpentDay, 0), reconcile.Today()); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (h *TargetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t := h.targetFromPath(w, r)
	if t == nil {
		return
	}
	if err := h.db.DeleteTarget(t.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.audit(r, "target_delete", 0, fmt.Sprintf("%s@%s", t.Username, t.Address))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AdjustTime tries to apply a signed time delta right away. If the machine
// is unreachable the delta is queued instead and the caller is told the
// intent succeeded; the reconciler replays it once the machine is back.
func (h *TargetHandler) AdjustTime(w http.ResponseWriter, r *http.Request) {
	t := h.targetFromPath(w, r)
	if t == nil {
		return
	}

	_ = r.ParseForm()
	op := r.FormValue("operation")
	if op != "+" && op != "-" {
		writeError(w, http.StatusBadRequest, `operation must be "+" or "-"`)
		return
	}
	seconds, err := strconv.Atoi(r.FormValue("seconds"))
	if err != nil || seconds <= 0 {
		writeError(w, http.StatusBadRequest, "seconds must be a positive integer")
		return
	}

	client := h.client(t.Address)
	ok, message := client.AdjustTime(t.Username, op, seconds)
	if ok {
		// Refresh so the dashboard reflects the new remaining time, and
		// drop any previously queued delta since the operator's newest
		// intent just executed.
		if valid, _, report, err := client.FetchStatus(t.Username); err == nil && valid {
			raw, _ := json.Marshal(report)
			_ = h.db.CommitStatus(t.ID, string(raw), agent.IntValue(report, agent.KeyTimeSpentDay, 0), reconcile.Today())
		}
		_ = h.db.ClearPendingAdjustment(t.ID)

		h.audit(r, "time_adjust", t.ID, fmt.Sprintf("%s%d seconds", op, seconds))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
		return
	}

	if err := h.db.SetPendingAdjustment(t.ID, seconds, op); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.audit(r, "time_adjust_queued", t.ID, fmt.Sprintf("%s%d seconds", op, seconds))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"pending": true,
		"message": fmt.Sprintf("machine seems to be offline; adjustment of %s%d seconds has been queued and will be applied when it comes back online", op, seconds),
	})
}

func (h *TargetHandler) Usage(w http.ResponseWriter, r *http.Request) {
	t := h.targetFromPath(w, r)
	if t == nil {
		return
	}
	days := h.days
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}
	usage, err := h.db.RecentUsage(t.ID, days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"username": t.Username,
		"usage":    usage,
	})
}

func (h *TargetHandler) audit(r *http.Request, action string, targetID int64, detail string) {
	username, _ := h.sessions.GetUsername(r)
	_ = h.db.LogAudit(model.AuditEntry{
		Username:  username,
		Action:    action,
		TargetID:  targetID,
		Detail:    detail,
		IPAddress: util.GetClientIP(r),
	})
}
