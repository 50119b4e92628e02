package handler

import (
	"net/http"
	"strconv"

	"tkremote/internal/auth"
	"tkremote/internal/database"
)

type AdminHandler struct {
	db       *database.DB
	sessions *auth.SessionManager
}

func NewAdminHandler(db *database.DB, sm *auth.SessionManager) *AdminHandler {
	return &AdminHandler{db: db, sessions: sm}
}

func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	entries, total, err := h.db.ListAuditLog(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"total":   total,
		"entries": entries,
	})
}

// ChangePassword lets the logged-in operator rotate their own password.
func (h *AdminHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	username, ok := h.sessions.GetUsername(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	_ = r.ParseForm()
	current := r.FormValue("current_password")
	newPassword := r.FormValue("new_password")

	if current == "" || newPassword == "" {
		writeError(w, http.StatusBadRequest, "all fields are required")
		return
	}
	if len(newPassword) < 6 {
		writeError(w, http.StatusBadRequest, "new password must be at least 6 characters")
		return
	}

	u, err := h.db.AuthenticateUser(username, current)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if u == nil {
		writeError(w, http.StatusForbidden, "current password is incorrect")
		return
	}

	if err := h.db.UpdateUserPassword(username, newPassword); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
