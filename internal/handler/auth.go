package handler

import (
	"fmt"
	"net/http"

	"tkremote/internal/auth"
	"tkremote/internal/database"
	"tkremote/internal/model"
	"tkremote/internal/util"
)

type AuthHandler struct {
	db         *database.DB
	sessionMgr *auth.SessionManager
	ldap       *auth.LDAPClient
}

func NewAuthHandler(db *database.DB, sm *auth.SessionManager, ldap *auth.LDAPClient) *AuthHandler {
	return &AuthHandler{db: db, sessionMgr: sm, ldap: ldap}
}

func (h *AuthHandler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	username := r.FormValue("username")
	password := r.FormValue("password")

	var user *model.User
	var authMethod string

	// Directory auth first when enabled
	if h.ldap != nil {
		result, err := h.ldap.Authenticate(username, password)
		if err == nil && result != nil {
			role, allowed := h.ldap.ResolveRole(result.Groups)
			if !allowed {
				writeError(w, http.StatusForbidden, "access denied: not in an authorized group")
				return
			}
			_ = h.db.CreateLDAPUser(result.Username, role)
			user, _ = h.db.GetUserByUsername(result.Username)
			authMethod = "ldap"
		}
	}

	// Local fallback; with LDAP enabled it stays open for admins only
	if user == nil {
		u, err := h.db.AuthenticateUser(username, password)
		if err == nil && u != nil {
			if h.ldap != nil && u.Role != "admin" {
				writeError(w, http.StatusForbidden, "local login is disabled, use directory credentials")
				return
			}
			user = u
			authMethod = "local"
		}
	}

	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	csrfToken := h.sessionMgr.CreateSession(w, user.Username)

	_ = h.db.LogAudit(model.AuditEntry{
		Username:  user.Username,
		Action:    "login",
		Detail:    fmt.Sprintf("auth=%s", authMethod),
		IPAddress: util.GetClientIP(r),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"username":   user.Username,
		"role":       user.Role,
		"csrf_token": csrfToken,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	username, _ := h.sessionMgr.GetUsername(r)
	h.sessionMgr.DestroySession(w, r)

	if username != "" {
		_ = h.db.LogAudit(model.AuditEntry{
			Username:  username,
			Action:    "logout",
			IPAddress: util.GetClientIP(r),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
