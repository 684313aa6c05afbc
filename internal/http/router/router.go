// Package router assembles the gin engine from the application modules.
package router

import (
	"context"
	"net/http"
	"time"

	apphttp "leadfunnel_backend/internal/http"
	"leadfunnel_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	serviceName  = "leadfunnel"
	readyTimeout = 2 * time.Second
	roleAdmin    = "admin"
)

// New builds the engine: global middleware, health probes, the webhook group
// and the admin group, then lets every module mount its routes.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.Tracing(serviceName))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(app.Config)))

	engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/api/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()
		for _, h := range app.Health {
			if err := h.Ping(ctx); err != nil {
				app.Logger.Warn("readiness check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	webhookLimiter := httpkit.NewIPRateLimiter(
		rate.Limit(app.Config.GetWebhookRateLimit()),
		app.Config.GetWebhookRateBurst(),
		app.Logger,
	)
	webhooks := engine.Group("/webhook")
	webhooks.Use(webhookLimiter.RateLimit())
	webhooks.Use(httpkit.WebhookSecret(app.Config))

	adminLimiter := httpkit.NewAdminRateLimiter(app.Logger)
	authMiddleware := httpkit.AuthRequired(app.Config)
	v1 := engine.Group("/api/v1")
	admin := v1.Group("/admin")
	admin.Use(adminLimiter.RateLimit())
	admin.Use(authMiddleware)
	admin.Use(httpkit.RequireRole(roleAdmin))

	rc := &apphttp.RouterContext{
		Engine:           engine,
		V1:               v1,
		Webhooks:         webhooks,
		Admin:            admin,
		Config:           app.Config,
		AuthMiddleware:   authMiddleware,
		AdminRateLimiter: adminLimiter,
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(rc)
		app.Logger.Debug("module routes registered", "module", m.Name())
	}

	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.GetCORSOrigins()
	}
	return c
}
