// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	eventsfeature "github.com/dalemusser/flathub/internal/app/features/events"
	healthfeature "github.com/dalemusser/flathub/internal/app/features/health"
	joinrequestsfeature "github.com/dalemusser/flathub/internal/app/features/joinrequests"
	notificationsfeature "github.com/dalemusser/flathub/internal/app/features/notifications"
	sharedflatsfeature "github.com/dalemusser/flathub/internal/app/features/sharedflats"
	userstore "github.com/dalemusser/flathub/internal/app/store/users"
	"github.com/dalemusser/flathub/internal/app/system/auth"
	"github.com/dalemusser/flathub/internal/app/system/ratelimit"
	"github.com/dalemusser/flathub/internal/app/system/respond"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// FlatHub serves a JSON API:
//
//	/health
//	/api/shared-flats                       list, create
//	/api/shared-flats/{id}                  get, delete
//	/api/shared-flats/{id}/join             list, request
//	/api/shared-flats/{id}/join/{rid}/...   accept, reject
//	/api/shared-flats/{id}/events           list, append
//	/api/me/...                             own flat, requests, notifications
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// Reload the user on each request so deleted accounts lose access at once.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(deps.FlatHubMongoDatabase))

	var writes *ratelimit.Limiter
	if appCfg.WriteRateLimit > 0 {
		writes = ratelimit.New(appCfg.WriteRateLimit, appCfg.WriteRateWindow)
		background.mu.Lock()
		background.writes = writes
		background.mu.Unlock()
	}

	svc := BuildServices(appCfg, deps, logger)
	return newRouter(sessionMgr, svc, writes, deps, logger), nil
}

// newRouter mounts the features. A nil writes limiter disables throttling.
func newRouter(sessionMgr *auth.SessionManager, svc Services, writes *ratelimit.Limiter, deps DBDeps, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if signed in.
	r.Use(sessionMgr.LoadSessionUser)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respond.Fail(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respond.Fail(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.FlatHubMongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	flatsHandler := sharedflatsfeature.NewHandler(svc.Flats, logger)
	joinsHandler := joinrequestsfeature.NewHandler(svc.Joins, logger)
	eventsHandler := eventsfeature.NewHandler(svc.Ledger, logger)
	notesHandler := notificationsfeature.NewHandler(svc.Notify, logger)

	r.Route("/api", func(api chi.Router) {
		api.Use(ratelimit.Writes(writes))

		api.Mount("/shared-flats", sharedflatsfeature.Routes(flatsHandler, sessionMgr, map[string]http.Handler{
			"/join":   joinrequestsfeature.Routes(joinsHandler),
			"/events": eventsfeature.Routes(eventsHandler),
		}))

		api.Route("/me", func(me chi.Router) {
			me.Use(sessionMgr.RequireSignedIn)
			sharedflatsfeature.MountMe(me, flatsHandler)
			joinrequestsfeature.MountMe(me, joinsHandler)
			notificationsfeature.MountMe(me, notesHandler)
		})
	})

	return r
}
