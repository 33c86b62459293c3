// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	apifeature "github.com/dalemusser/ivrhub/internal/app/features/api"
	auditfeature "github.com/dalemusser/ivrhub/internal/app/features/auditlog"
	authgooglefeature "github.com/dalemusser/ivrhub/internal/app/features/authgoogle"
	callsfeature "github.com/dalemusser/ivrhub/internal/app/features/calls"
	dashboardfeature "github.com/dalemusser/ivrhub/internal/app/features/dashboard"
	healthfeature "github.com/dalemusser/ivrhub/internal/app/features/health"
	heartbeatfeature "github.com/dalemusser/ivrhub/internal/app/features/heartbeat"
	hierarchyfeature "github.com/dalemusser/ivrhub/internal/app/features/hierarchy"
	loginfeature "github.com/dalemusser/ivrhub/internal/app/features/login"
	logoutfeature "github.com/dalemusser/ivrhub/internal/app/features/logout"
	ordersfeature "github.com/dalemusser/ivrhub/internal/app/features/orders"
	patientsfeature "github.com/dalemusser/ivrhub/internal/app/features/patients"
	portalusersfeature "github.com/dalemusser/ivrhub/internal/app/features/portalusers"
	profilefeature "github.com/dalemusser/ivrhub/internal/app/features/profile"
	reportsfeature "github.com/dalemusser/ivrhub/internal/app/features/reports"
	settingsfeature "github.com/dalemusser/ivrhub/internal/app/features/settings"
	territoriesfeature "github.com/dalemusser/ivrhub/internal/app/features/territories"
	userinfofeature "github.com/dalemusser/ivrhub/internal/app/features/userinfo"
	auditstore "github.com/dalemusser/ivrhub/internal/app/store/audit"
	hierarchystore "github.com/dalemusser/ivrhub/internal/app/store/hierarchyusers"
	userstore "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	sessionstore "github.com/dalemusser/ivrhub/internal/app/store/sessions"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/guard"
	"github.com/dalemusser/ivrhub/internal/app/system/metrics"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed. The router splits into three surfaces:
// unauthenticated infrastructure endpoints (health, metrics, static files),
// the session-cookie portal with CSRF protection, and the bearer-token
// /api/v1 surface guarded by token claims.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase
	secure := coreCfg.Env == "prod"

	// Session manager with per-request user refresh, so role changes and
	// disabled accounts take effect immediately.
	sessionMgr, err := auth.NewSessionManager(
		appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain,
		appCfg.SessionTTL, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	sessionMgr.SetUserFetcher(userstore.NewFetcher(db))

	// Branding uploads (logo) live on local disk and are served under the
	// configured URL prefix.
	store, err := storage.NewLocal(storage.LocalConfig{
		BasePath: appCfg.StorageLocalPath,
		BaseURL:  appCfg.StorageLocalURL,
	})
	if err != nil {
		logger.Error("local storage init failed", zap.Error(err))
		return nil, err
	}
	viewdata.Init(store)

	auditLogger := auditlog.New(auditstore.New(db), logger, auditlog.Config{
		Auth:     appCfg.AuditLogAuth,
		Admin:    appCfg.AuditLogAdmin,
		Security: appCfg.AuditLogSecurity,
	})

	// The hierarchy service runs all ancestry/descendancy traversal over
	// the Mongo-backed directory.
	svc := hierarchy.NewService(hierarchystore.New(db))

	sessStore := sessionstore.New(db)

	r := chi.NewRouter()
	r.Use(metrics.Instrument)

	// Loads the SessionUser into context when a valid cookie is present.
	r.Use(sessionMgr.LoadSessionUser)

	// Infrastructure endpoints, reachable without a session.
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", metrics.Handler())

	// Static assets with pre-compressed file support (gzip/brotli)
	r.Handle("/static/*", fileserver.Handler("/static", "public"))
	r.Handle(appCfg.StorageLocalURL+"/*", fileserver.Handler(appCfg.StorageLocalURL, appCfg.StorageLocalPath))

	googleHandler := authgooglefeature.NewHandler(db, sessionMgr, auditLogger,
		appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL,
		appCfg.MFACodeExpiry, logger)
	googleEnabled := googleHandler.IsConfigured()

	// The session-cookie portal. Every state-changing form post carries the
	// CSRF token that viewdata exposes to the front end.
	csrfProtect := csrf.Protect([]byte(appCfg.SessionKey),
		csrf.Secure(secure),
		csrf.Path("/"))

	r.Group(func(pr chi.Router) {
		pr.Use(csrfProtect)

		pr.Get("/", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, "/dashboard", http.StatusSeeOther)
		})

		loginHandler := loginfeature.NewHandler(db, sessionMgr, auditLogger,
			appCfg.MFACodeExpiry, googleEnabled, logger)
		pr.Mount("/login", loginfeature.Routes(loginHandler))

		if googleEnabled {
			pr.Mount("/auth/google", authgooglefeature.Routes(googleHandler))
		}

		logoutHandler := logoutfeature.NewHandler(sessionMgr, sessStore, auditLogger, logger)
		pr.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

		heartbeatHandler := heartbeatfeature.NewHandler(sessStore, sessionMgr, logger)
		pr.Mount("/heartbeat", heartbeatfeature.Routes(heartbeatHandler, sessionMgr))

		dashboardHandler := dashboardfeature.NewHandler(db, svc, logger)
		pr.Mount("/dashboard", dashboardfeature.Routes(dashboardHandler, sessionMgr))

		hierarchyHandler := hierarchyfeature.NewHandler(db, svc, auditLogger, logger)
		pr.Mount("/hierarchy", hierarchyfeature.Routes(hierarchyHandler, sessionMgr))

		territoriesHandler := territoriesfeature.NewHandler(db, auditLogger, logger)
		pr.Mount("/territories", territoriesfeature.Routes(territoriesHandler, sessionMgr))

		patientsHandler := patientsfeature.NewHandler(db, svc, auditLogger, logger)
		pr.Mount("/patients", patientsfeature.Routes(patientsHandler, sessionMgr))

		ordersHandler := ordersfeature.NewHandler(db, svc, auditLogger, logger)
		pr.Mount("/orders", ordersfeature.Routes(ordersHandler, sessionMgr))

		callsHandler := callsfeature.NewHandler(db, svc, auditLogger, logger)
		pr.Mount("/calls", callsfeature.Routes(callsHandler, sessionMgr))

		reportsHandler := reportsfeature.NewHandler(db, svc, logger)
		pr.Mount("/reports", reportsfeature.Routes(reportsHandler, sessionMgr))

		settingsHandler := settingsfeature.NewHandler(db, store, auditLogger, logger)
		pr.Mount("/settings", settingsfeature.Routes(settingsHandler, sessionMgr))

		portalUsersHandler := portalusersfeature.NewHandler(db, svc, auditLogger, logger)
		pr.Mount("/portal-users", portalusersfeature.Routes(portalUsersHandler, sessionMgr))

		profileHandler := profilefeature.NewHandler(db, auditLogger, logger)
		pr.Mount("/profile", profilefeature.Routes(profileHandler, sessionMgr))

		auditHandler := auditfeature.NewHandler(db, logger)
		pr.Mount("/audit", auditfeature.Routes(auditHandler, sessionMgr))

		userinfofeature.MountRoutes(pr, userinfofeature.NewHandler())
	})

	// The bearer-token API. A remote verification service takes precedence;
	// otherwise tokens are checked against the shared HS256 secret. With
	// neither configured the surface stays unmounted.
	var verifier guard.Verifier
	switch {
	case appCfg.APIVerifyEndpoint != "":
		verifier = guard.NewRemoteVerifier(appCfg.APIVerifyEndpoint, nil)
	case appCfg.APIJWTSecret != "":
		verifier = guard.NewJWTVerifier(appCfg.APIJWTSecret, appCfg.APIJWTLeeway)
	}
	if verifier != nil {
		g := guard.New(verifier, logger)
		g.OnDeny(func(req *http.Request, d guard.Decision) {
			auditLogger.AccessDenied(req.Context(), req, "", "", req.URL.Path, d.Reason.String())
		})
		apiHandler := apifeature.NewHandler(db, svc, logger)
		r.Mount("/api/v1", apifeature.Routes(apiHandler, g))
	} else {
		logger.Warn("bearer API disabled: neither api_verify_endpoint nor api_jwt_secret is set")
	}

	return r, nil
}
