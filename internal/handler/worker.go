package handler

import (
	"net/http"

	"tkremote/internal/auth"
	"tkremote/internal/database"
	"tkremote/internal/model"
	"tkremote/internal/reconcile"
	"tkremote/internal/util"
)

type WorkerHandler struct {
	db         *database.DB
	sessions   *auth.SessionManager
	supervisor *reconcile.Supervisor
}

func NewWorkerHandler(db *database.DB, sm *auth.SessionManager, sup *reconcile.Supervisor) *WorkerHandler {
	return &WorkerHandler{db: db, sessions: sm, supervisor: sup}
}

func (h *WorkerHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  h.supervisor.Status(),
	})
}

func (h *WorkerHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.supervisor.Start()
	h.audit(r, "worker_start")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *WorkerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.supervisor.Stop()
	h.audit(r, "worker_stop")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *WorkerHandler) Restart(w http.ResponseWriter, r *http.Request) {
	h.supervisor.Restart()
	h.audit(r, "worker_restart")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *WorkerHandler) audit(r *http.Request, action string) {
	username, _ := h.sessions.GetUsername(r)
	_ = h.db.LogAudit(model.AuditEntry{
		Username:  username,
		Action:    action,
		IPAddress: util.GetClientIP(r),
	})
}
