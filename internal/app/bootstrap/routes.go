// internal/app/bootstrap/routes.go
package bootstrap

import (
	"fmt"
	"net/http"
	"time"

	healthfeature "github.com/dalemusser/dikshahub/internal/app/features/health"
	schedulefeature "github.com/dalemusser/dikshahub/internal/app/features/schedule"
	userinfofeature "github.com/dalemusser/dikshahub/internal/app/features/userinfo"
	"github.com/dalemusser/dikshahub/internal/app/system/auth"
	"github.com/dalemusser/dikshahub/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: the store plus the services built in Startup
//   - logger: the fully configured zap.Logger for this app
//
// DikshaHub applies session middleware and mounts /health, the scheduling
// JSON API under /api, and Prometheus metrics on /metrics.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if deps.services == nil || deps.services.engine == nil {
		return nil, fmt.Errorf("build handler: engine not initialized (Startup must run first)")
	}
	svc := deps.services

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	sessionMgr.TrustIdentityHeaders(appCfg.TrustIdentityHeaders)

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if signed in.
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(svc.engine, deps.Backend, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	userinfofeature.MountRoutes(r, userinfofeature.NewHandler(sessionMgr))

	var apiMW []func(http.Handler) http.Handler
	if appCfg.APIMutationsPerMinute > 0 {
		svc.limiter = ratelimit.New(appCfg.APIMutationsPerMinute, time.Minute)
		apiMW = append(apiMW, svc.limiter.Middleware)
	}
	scheduleHandler := schedulefeature.NewHandler(svc.engine, logger)
	r.With(apiMW...).Mount("/api", schedulefeature.Routes(scheduleHandler, sessionMgr))

	if appCfg.MetricsEnabled && svc.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{}))
	}

	return r, nil
}
