// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and idempotency.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/ev-charging-log/internal/config"
	"github.com/tbourn/ev-charging-log/internal/domain"
	"github.com/tbourn/ev-charging-log/internal/http/handlers"
	"github.com/tbourn/ev-charging-log/internal/http/middleware"
	"github.com/tbourn/ev-charging-log/internal/repo"
	"github.com/tbourn/ev-charging-log/internal/services"
)

// maxBodyBytes caps request bodies for every endpoint.
const maxBodyBytes = 1 << 20

// exposedHeaders are the response headers browser clients may read.
var exposedHeaders = []string{
	"X-Request-ID",
	"Content-Length",
	"Content-Disposition",
	handlers.HeaderTotalCount,
	middleware.HeaderIdempotencyReplayed,
}

// sessionRepoShim adapts the repository free functions to the
// services.SessionRepo interface expected by the SessionService.
type sessionRepoShim struct{}

// CreateSession proxies repo.CreateSession.
func (sessionRepoShim) CreateSession(ctx context.Context, db *gorm.DB, values map[string]any) (*domain.ChargingSession, error) {
	return repo.CreateSession(ctx, db, values)
}

// ListSessions proxies repo.ListSessions.
func (sessionRepoShim) ListSessions(ctx context.Context, db *gorm.DB) ([]domain.ChargingSession, error) {
	return repo.ListSessions(ctx, db)
}

// ListSessionsPage proxies repo.ListSessionsPage (pagination support).
func (sessionRepoShim) ListSessionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ChargingSession, error) {
	return repo.ListSessionsPage(ctx, db, offset, limit)
}

// CountSessions proxies repo.CountSessions (pagination support).
func (sessionRepoShim) CountSessions(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountSessions(ctx, db)
}

// ListLocations proxies repo.ListLocations.
func (sessionRepoShim) ListLocations(ctx context.Context, db *gorm.DB) ([]repo.LocationRow, error) {
	return repo.ListLocations(ctx, db)
}

// ListNotes proxies repo.ListNotes.
func (sessionRepoShim) ListNotes(ctx context.Context, db *gorm.DB) ([]string, error) {
	return repo.ListNotes(ctx, db)
}

// UpdateSession proxies repo.UpdateSession.
func (sessionRepoShim) UpdateSession(ctx context.Context, db *gorm.DB, id string, set map[string]any) error {
	return repo.UpdateSession(ctx, db, id, set)
}

// GetIdempotency proxies repo.GetIdempotency.
func (sessionRepoShim) GetIdempotency(ctx context.Context, db *gorm.DB, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, scope, key, now)
}

// CreateIdempotency proxies repo.CreateIdempotency.
func (sessionRepoShim) CreateIdempotency(ctx context.Context, db *gorm.DB, scope, key, sessionID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, scope, key, sessionID, status, ttl)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. Health, readiness and metrics endpoints live at the root; the
// charging session API is mounted under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Access log (RedactingLogger when cfg.LogRedact)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//
// The Idempotency-Key validator is attached to the create route only.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logs
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key"},
		}))
	} else {
		r.Use(middleware.Logger())
	}

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       false,
		EnablePolicy:  true,
		ExposeHeaders: exposedHeaders,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/readiness
	r.GET("/health", handlers.Health)
	r.HEAD("/health", handlers.Health)
	r.GET("/ready", handlers.Ready(pingDB(db), 2*time.Second))

	// Dependency injection: services ← repo/db
	svc := services.NewSessionService(db, sessionRepoShim{})
	if cfg.DefaultCurrency != "" {
		svc.DefaultCurrency = cfg.DefaultCurrency
	}
	if cfg.IdempotencyTTL > 0 {
		svc.IdempotencyTTL = cfg.IdempotencyTTL
	}
	h := handlers.New(svc)

	idem := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{Scope: services.CreateScope, MaxLen: 200},
		func(ctx context.Context, scope, key string, now time.Time) (string, bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, scope, key, now)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				return "", false, nil
			case err != nil:
				return "", false, err
			}
			return rec.SessionID, true, nil
		},
	)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	sessions := api.Group("/charging_sessions")
	{
		sessions.POST("", idem, h.CreateSession)
		sessions.GET("", h.ListSessions)
		sessions.GET("/locations", h.ListLocations)
		sessions.GET("/notes", h.ListNotes)
		sessions.GET("/export", h.ExportSessions)
		sessions.PUT("/:id", h.UpdateSession)
	}
}

// corsMiddleware builds the CORS chain. With no allow-list every origin is
// accepted; otherwise the request Origin is echoed only when allowed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    exposedHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// pingDB returns a readiness check that pings the pool behind db.
func pingDB(db *gorm.DB) handlers.ReadinessCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
