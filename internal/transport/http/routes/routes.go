package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/port"
	"github.com/arklim/realm-auth-service/internal/infra/config"
	"github.com/arklim/realm-auth-service/internal/transport/http/handlers"
	"github.com/arklim/realm-auth-service/internal/transport/http/middleware"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Tracer      trace.Tracer
	Realms      []handlers.UserLifecycle
	Sessions    middleware.SessionValidator
	Revocations middleware.RevocationLookup
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	// SuspiciousIPs screens every request; Suspicious counts the hits.
	SuspiciousIPs port.MembershipFilter
	Suspicious    prometheus.Counter
	Reporter      port.ErrorReporter
	Filters       handlers.FilterStatsSource
	Database      DatabaseChecker
	Cache         CacheChecker
	Gatherer      prometheus.Gatherer
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext(deps.Tracer))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.ScreenSuspiciousIPs(deps.SuspiciousIPs, deps.Reporter, deps.Suspicious))

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", metricsHandler(deps.Gatherer))
	if deps.Filters != nil {
		r.GET("/filters/stats", handlers.FilterStats(deps.Filters))
	}

	limit := buildRateLimit(deps)
	for _, users := range deps.Realms {
		realm := users.Realm()
		group := r.Group(realm.RoutePrefix)
		if limit != nil {
			group.Use(limit)
		}
		auth := middleware.RequireSession(deps.Sessions, deps.Revocations, realm.Name)
		handlers.NewUserHandler(users).RegisterRoutes(group, auth)
	}

	handlers.RegisterSwagger(r)

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	if gatherer == nil {
		return gin.WrapH(promhttp.Handler())
	}
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

func buildRateLimit(deps Dependencies) gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	settings := deps.Config.RateLimit
	if settings.MaxRequests <= 0 || settings.Window <= 0 {
		return nil
	}

	return deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       "realm_ip",
		Limit:      settings.MaxRequests,
		Window:     settings.Window,
		Identifier: middleware.ClientIPIdentifier(),
	})
}
