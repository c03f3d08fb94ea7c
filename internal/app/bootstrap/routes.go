// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"strings"

	collaborationsfeature "github.com/dalemusser/stratacomm/internal/app/features/collaborations"
	groupsfeature "github.com/dalemusser/stratacomm/internal/app/features/groups"
	healthfeature "github.com/dalemusser/stratacomm/internal/app/features/health"
	messagesfeature "github.com/dalemusser/stratacomm/internal/app/features/messages"
	notificationsfeature "github.com/dalemusser/stratacomm/internal/app/features/notifications"
	orgfeature "github.com/dalemusser/stratacomm/internal/app/features/org"
	permissionsfeature "github.com/dalemusser/stratacomm/internal/app/features/permissions"
	"github.com/dalemusser/stratacomm/internal/app/features/shared"
	wsfeature "github.com/dalemusser/stratacomm/internal/app/features/ws"
	"github.com/dalemusser/stratacomm/internal/app/system/auth"
	"github.com/dalemusser/stratacomm/internal/app/system/metrics"
	"github.com/dalemusser/stratacomm/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed, so deps.Services is ready.
//
// /health and /metrics are public. Everything under /api and /ws needs a
// bearer token; websocket clients may pass it as access_token instead.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.Services
	f := svc.Fabric

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// Global auth middleware: loads the token's user into context when present.
	r.Use(svc.Auth.LoadUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, deps.NATS, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", promhttp.Handler())

	r.With(auth.RequireUser).Mount("/ws", wsfeature.Routes(wsfeature.NewHandler(svc.Hub, logger)))

	// Only writes that fan out are limited; reads and marks pass through.
	limitSends := ratelimit.Middleware(svc.SendLimiter, shared.Actor, tooManyRequests)
	sendsOnly := func(next http.Handler) http.Handler {
		limited := limitSends(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Method == http.MethodPost && isSendPath(req.URL.Path) {
				limited.ServeHTTP(w, req)
				return
			}
			next.ServeHTTP(w, req)
		})
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.RequireUser)

		api.With(sendsOnly).Mount("/messages", messagesfeature.Routes(messagesfeature.NewHandler(f, logger)))
		api.With(sendsOnly).Mount("/notifications", notificationsfeature.Routes(notificationsfeature.NewHandler(f, logger)))
		api.Mount("/groups", groupsfeature.Routes(groupsfeature.NewHandler(f, logger)))
		api.Mount("/collaborations", collaborationsfeature.Routes(collaborationsfeature.NewHandler(f, logger)))
		api.Mount("/org", orgfeature.Routes(orgfeature.NewHandler(f, logger)))
		api.Mount("/permissions", permissionsfeature.Routes(permissionsfeature.NewHandler(f, logger)))
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		shared.WriteJSON(w, http.StatusNotFound, shared.ErrorBody{Code: shared.CodeNotFound, Error: "no such route"})
	})

	return r, nil
}

func isSendPath(p string) bool {
	switch strings.TrimSuffix(p, "/") {
	case "/api/messages", "/api/notifications", "/api/notifications/broadcast":
		return true
	}
	return false
}

func tooManyRequests(w http.ResponseWriter, _ *http.Request) {
	shared.WriteJSON(w, http.StatusTooManyRequests, shared.ErrorBody{Code: shared.CodeRateLimited, Error: "too many requests, slow down"})
}
