package api

import (
	"linkdrop/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and
// middleware. The limiter is shared with the services, which consult it for
// gated write actions under their own keys.
func SetupRouter(handler *Handler, cfg *config.Config, limiter *RateLimiter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())

	// Health & stats
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)

	// Identity provider webhooks (signature-verified, never session-authed)
	e.POST("/webhooks/auth", handler.HandleAuthWebhook)

	// Public upload surface (rate-limited per client IP)
	public := e.Group("/api/public", limiter.Middleware())
	public.GET("/links/*", handler.HandleValidateAccess)
	public.POST("/uploads/batches", handler.HandleStartBatch)
	public.POST("/uploads/link-file", handler.HandleUploadFile)
	public.POST("/uploads/batches/:id/complete", handler.HandleCompleteBatch)

	// Owner surface (session-authed)
	auth := e.Group("/api", SessionAuth([]byte(cfg.SessionSecret)))
	auth.POST("/links", handler.HandleCreateLink)
	auth.GET("/links", handler.HandleListLinks)
	auth.PATCH("/links/:id", handler.HandleUpdateLink)
	auth.DELETE("/links/:id", handler.HandleDeleteLink)

	auth.GET("/files", handler.HandleListFiles)
	auth.DELETE("/files/:id", handler.HandleDeleteFile)

	auth.POST("/folders", handler.HandleCreateFolder)
	auth.PATCH("/folders/:id", handler.HandleMoveFolder)
	auth.POST("/folders/:id/share", handler.HandleShareFolder)
	auth.DELETE("/folders/:id", handler.HandleDeleteFolder)
	auth.GET("/workspace/tree", handler.HandleWorkspaceTree)

	auth.GET("/notifications", handler.HandleListNotifications)
	auth.POST("/notifications/:id/read", handler.HandleMarkNotificationRead)
	auth.POST("/notifications/mark-all-read", handler.HandleMarkAllNotificationsRead)
	auth.DELETE("/notifications", handler.HandleDeleteNotification)

	auth.GET("/realtime/subscribe", handler.HandleSubscribe)

	return e
}
