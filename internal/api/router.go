// Package api wires together all HTTP routes for the tenant registry.
//
// Route grouping philosophy:
//   - Signup and name lookup are public: a prospective tenant has no
//     credential yet, and name resolution is how clients discover partitions.
//   - Mutating routes (update, delete) require a tenant-scoped JWT and only
//     ever act on the tenant the token names.
//   - The login endpoint carries a stricter rate limit preset than the rest
//     of the API.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tenant-registry/tenant-registry/internal/api/tenants"
	"github.com/tenant-registry/tenant-registry/internal/config"
	"github.com/tenant-registry/tenant-registry/internal/db/repositories"
	"github.com/tenant-registry/tenant-registry/internal/jobs"
	"github.com/tenant-registry/tenant-registry/internal/lifecycle"
	"github.com/tenant-registry/tenant-registry/internal/middleware"
	"github.com/tenant-registry/tenant-registry/internal/partition"
)

// Version is the service version reported by /version.
const Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) invokes
// Shutdown() after the HTTP server has drained.
type BackgroundServices struct {
	reconciler   *jobs.Reconciler
	rateLimiters []middleware.Limiter
	redisClient  *redis.Client
}

// Shutdown stops all background goroutines and closes shared clients.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.reconciler != nil {
		bg.reconciler.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router together with the
// background services it starts.
func NewRouter(cfg *config.Config, client *mongo.Client) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{}

	database := client.Database(cfg.Mongo.Database)

	// Repositories and the partition store
	tenantRepo := repositories.NewTenantRepository(database)
	intentRepo := repositories.NewIntentRepository(database)
	partitionStore := partition.NewStore(client, cfg.Mongo.Database)

	indexCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := tenantRepo.EnsureIndexes(indexCtx); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	manager := lifecycle.NewManager(tenantRepo, partitionStore, intentRepo)
	tenantHandlers := tenants.NewHandlers(cfg, manager, tenantRepo)

	// Reconciliation sweep
	if cfg.Reconciler.Enabled {
		bg.reconciler = jobs.NewReconciler(tenantRepo, intentRepo, partitionStore, cfg.Reconciler)
		bg.reconciler.Start(context.Background())
	}

	// Rate limiters: Redis-backed when an address is configured so limits
	// hold across replicas, in-process token buckets otherwise.
	var generalLimiter, authLimiter, lifecycleLimiter middleware.Limiter
	if cfg.Redis.Addr != "" {
		bg.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		generalLimiter = middleware.NewRedisRateLimiter(bg.redisClient, "general", middleware.DefaultRateLimitConfig())
		authLimiter = middleware.NewRedisRateLimiter(bg.redisClient, "auth", middleware.AuthRateLimitConfig())
		lifecycleLimiter = middleware.NewRedisRateLimiter(bg.redisClient, "lifecycle", middleware.LifecycleRateLimitConfig())
		slog.Info("using redis-backed rate limiting", "addr", cfg.Redis.Addr)
	} else {
		generalLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
		authLimiter = middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
		lifecycleLimiter = middleware.NewRateLimiter(middleware.LifecycleRateLimitConfig())
	}
	bg.rateLimiters = []middleware.Limiter{generalLimiter, authLimiter, lifecycleLimiter}

	// Middleware chain
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))

	// Liveness and readiness
	router.GET("/health", healthHandler())
	router.GET("/ready", readinessHandler(client))
	router.GET("/version", versionHandler())

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		authGroup.Use(middleware.RateLimitMiddleware(authLimiter, middleware.AuthRateLimitConfig().RequestsPerMinute))
		{
			authGroup.POST("/login", tenantHandlers.Login)
		}

		tenantsGroup := apiV1.Group("/tenants")
		{
			// Signup moves physical data, so it shares the lifecycle preset.
			tenantsGroup.POST("",
				middleware.RateLimitMiddleware(lifecycleLimiter, middleware.LifecycleRateLimitConfig().RequestsPerMinute),
				tenantHandlers.Create)
			tenantsGroup.GET("/:name",
				middleware.RateLimitMiddleware(generalLimiter, middleware.DefaultRateLimitConfig().RequestsPerMinute),
				tenantHandlers.Get)

			protected := tenantsGroup.Group("")
			protected.Use(
				middleware.RateLimitMiddleware(lifecycleLimiter, middleware.LifecycleRateLimitConfig().RequestsPerMinute),
				middleware.AuthMiddleware(),
			)
			{
				protected.PUT("", tenantHandlers.Update)
				protected.DELETE("/:name", tenantHandlers.Delete)
			}
		}
	}

	return router, bg, nil
}

// healthHandler is the liveness probe: the process is up and serving.
func healthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler is the readiness probe: fails when the document store is
// unreachable, since every endpoint needs it.
func readinessHandler(client *mongo.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready": false,
				"error": "document store not ready",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ready": true,
			"time":  time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one structured slog record per request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
