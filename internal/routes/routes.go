package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/promoledger/backend/internal/handlers"
	"github.com/promoledger/backend/internal/middleware"
	"gorm.io/gorm"
)

// Handlers bundles every HTTP handler the router mounts
type Handlers struct {
	Click      *handlers.ClickHandler
	Conversion *handlers.ConversionHandler
	Link       *handlers.LinkHandler
	Ledger     *handlers.LedgerHandler
	Payout     *handlers.PayoutHandler
	Health     *handlers.HealthHandler
}

// RouterConfig holds router level settings
type RouterConfig struct {
	AllowedOrigins []string
	Production     bool
}

// SetupRouter builds the gin engine with global middleware and all routes
func SetupRouter(cfg RouterConfig, h *Handlers, db *gorm.DB, rateLimiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecureHeadersMiddleware(cfg.Production))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.SignatureHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", h.Health.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterTrackingRoutes(router, h, rateLimiter)
	RegisterWebhookRoutes(router, h, db)
	RegisterInfluencerRoutes(router, h)
	RegisterAdminRoutes(router, h)

	return router
}

// RegisterTrackingRoutes registers the public redirect
func RegisterTrackingRoutes(router *gin.Engine, h *Handlers, rateLimiter *middleware.RateLimiter) {
	redirect := router.Group("/r")
	if rateLimiter != nil {
		redirect.Use(rateLimiter.IPRateLimiterMiddleware())
	}
	{
		redirect.GET("/:code", h.Click.Redirect)
		redirect.GET("/:code/*slug", h.Click.Redirect)
	}
}

// RegisterInfluencerRoutes registers the authenticated influencer API
func RegisterInfluencerRoutes(router *gin.Engine, h *Handlers) {
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(), middleware.InfluencerMiddleware())
	{
		api.POST("/links", h.Link.CreateLink)
		api.GET("/links", h.Link.ListLinks)

		api.GET("/balance", h.Ledger.GetBalance)
		api.GET("/conversions", h.Ledger.ListConversions)

		api.GET("/payouts", h.Payout.ListPayouts)
		api.POST("/payouts", h.Payout.CreatePayout)
		api.POST("/payouts/:id/cancel", h.Payout.CancelPayout)
	}
}

// RegisterAdminRoutes registers conversion review and payout operations
func RegisterAdminRoutes(router *gin.Engine, h *Handlers) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.POST("/conversions/:id/approve", h.Ledger.ApproveConversion)
		admin.POST("/conversions/:id/reject", h.Ledger.RejectConversion)

		admin.GET("/payouts/:id", h.Payout.GetPayout)
		admin.POST("/payouts/:id/process", h.Payout.ProcessPayout)
		admin.POST("/payouts/:id/complete", h.Payout.CompletePayout)
		admin.POST("/payouts/:id/fail", h.Payout.FailPayout)
		admin.POST("/payouts/:id/retry", h.Payout.RetryPayout)
		admin.POST("/payouts/:id/cancel", h.Payout.AdminCancelPayout)
	}
}
