package server

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"tkremote/internal/agent"
	"tkremote/internal/auth"
	"tkremote/internal/config"
	"tkremote/internal/database"
	"tkremote/internal/handler"
	"tkremote/internal/reconcile"
	"tkremote/web"
)

func Start(cfg *config.Config, version string, log zerolog.Logger) error {
	db, err := database.Open(cfg.Database.DSN, web.MigrationsFS())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	sessionMgr, err := auth.NewSessionManager(db)
	if err != nil {
		return fmt.Errorf("failed to init session manager: %w", err)
	}
	if purged, err := db.PurgeExpiredSessions(); err == nil && purged > 0 {
		log.Info().Int64("purged", purged).Msg("expired sessions removed")
	}

	var ldapClient *auth.LDAPClient
	if cfg.LDAP.Enabled {
		ldapClient = auth.NewLDAPClient(cfg.LDAP)
		log.Info().Str("url", cfg.LDAP.URL).
			Int("mapped_roles", len(cfg.LDAP.GroupMapping)).
			Msg("LDAP authentication enabled")
	}

	reconciler := reconcile.New(db, func(host string) reconcile.AgentClient {
		return agent.NewClient(host, cfg.SSH, log)
	}, log)
	supervisor := reconcile.NewSupervisor(reconciler, cfg.Worker.Interval(), cfg.Worker.StopTimeout(), log)
	if !cfg.Worker.ManualStart {
		supervisor.Start()
		defer supervisor.Stop()
	}

	setupH := handler.NewSetupHandler(db)
	authH := handler.NewAuthHandler(db, sessionMgr, ldapClient)
	targetH := handler.NewTargetHandler(db, sessionMgr, cfg.SSH, cfg.Dashboard.Days, log)
	scheduleH := handler.NewScheduleHandler(db, sessionMgr)
	workerH := handler.NewWorkerHandler(db, sessionMgr, supervisor)
	adminH := handler.NewAdminHandler(db, sessionMgr)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /setup", setupH.SetupStatus)
	mux.HandleFunc("POST /setup", setupH.SetupSubmit)

	appMux := http.NewServeMux()

	appMux.HandleFunc("POST /login", authH.LoginSubmit)
	appMux.HandleFunc("POST /logout", authH.Logout)

	appMux.HandleFunc("GET /api/targets", sessionMgr.RequireAuth(targetH.List))
	appMux.HandleFunc("POST /api/targets", sessionMgr.RequireAuth(sessionMgr.ValidateCSRF(targetH.Create)))
	appMux.HandleFunc("POST /api/targets/{targetID}/validate", sessionMgr.RequireAuth(sessionMgr.ValidateCSRF(targetH.Validate)))
	appMux.HandleFunc("POST /api/targets/{targetID}/delete", sessionMgr.RequireAuth(sessionMgr.ValidateCSRF(targetH.Delete)))
	appMux.HandleFunc("POST /api/targets/{targetID}/time", sessionMgr.RequireAuth(sessionMgr.ValidateCSRF(targetH.AdjustTime)))
	appMux.HandleFunc("GET /api/targets/{targetID}/usage", sessionMgr.RequireAuth(targetH.Usage))

	appMux.HandleFunc("GET /api/targets/{targetID}/quota", sessionMgr.RequireAuth(scheduleH.GetQuota))
	appMux.HandleFunc("PUT /api/targets/{targetID}/quota", sessionMgr.RequireAuth(sessionMgr.ValidateCSRF(scheduleH.SetQuota)))
	appMux.HandleFunc("GET /api/targets/{targetID}/windows", sessionMgr.RequireAuth(scheduleH.GetWindows))
	appMux.HandleFunc("PUT /api/targets/{targetID}/windows", sessionMgr.RequireAuth(sessionMgr.ValidateCSRF(scheduleH.SetWindows)))

	appMux.HandleFunc("GET /api/worker/status", sessionMgr.RequireAuth(workerH.Status))
	appMux.HandleFunc("POST /api/worker/start", sessionMgr.RequireAuth(sessionMgr.ValidateCSRF(workerH.Start)))
	appMux.HandleFunc("POST /api/worker/stop", sessionMgr.RequireAuth(sessionMgr.ValidateCSRF(workerH.Stop)))
	appMux.HandleFunc("POST /api/worker/restart", sessionMgr.RequireAuth(sessionMgr.ValidateCSRF(workerH.Restart)))

	appMux.HandleFunc("POST /api/password", sessionMgr.RequireAuth(sessionMgr.ValidateCSRF(adminH.ChangePassword)))
	appMux.HandleFunc("GET /api/audit", sessionMgr.RequireAdmin(adminH.AuditLog))

	mux.Handle("/", handler.RequireSetupComplete(db, appMux))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().Str("addr", addr).Str("version", version).Msg("tkremote server starting")
	return http.ListenAndServe(addr, mux)
}
