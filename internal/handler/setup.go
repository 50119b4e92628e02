package handler

import (
	"net/http"

	"tkremote/internal/database"
)

type SetupHandler struct {
	db *database.DB
}

func NewSetupHandler(db *database.DB) *SetupHandler {
	return &SetupHandler{db: db}
}

// SetupStatus tells a fresh deployment whether the first admin account
// still needs to be created.
func (h *SetupHandler) SetupStatus(w http.ResponseWriter, r *http.Request) {
	hasUsers, _ := h.db.HasUsers()
	writeJSON(w, http.StatusOK, map[string]any{"setup_complete": hasUsers})
}

// SetupSubmit creates the first admin account. It is gated: once any user
// exists the endpoint disappears.
func (h *SetupHandler) SetupSubmit(w http.ResponseWriter, r *http.Request) {
	hasUsers, _ := h.db.HasUsers()
	if hasUsers {
		http.NotFound(w, r)
		return
	}

	_ = r.ParseForm()
	username := r.FormValue("username")
	password := r.FormValue("password")

	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if len(password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	if err := h.db.CreateUser(username, password, "admin"); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// RequireSetupComplete blocks the application until the first admin
// exists.
func RequireSetupComplete(db *database.DB, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasUsers, _ := db.HasUsers()
		if !hasUsers {
			writeError(w, http.StatusServiceUnavailable, "setup not complete")
			return
		}
		next.ServeHTTP(w, r)
	})
}
