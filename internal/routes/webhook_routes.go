package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/promoledger/backend/internal/middleware"
	"gorm.io/gorm"
)

// RegisterWebhookRoutes registers brand purchase notifications
func RegisterWebhookRoutes(router *gin.Engine, h *Handlers, db *gorm.DB) {
	webhooks := router.Group("/webhooks/brands/:brand_id")
	webhooks.Use(middleware.BrandSignatureMiddleware(db))
	{
		webhooks.POST("/conversions", h.Conversion.Webhook)
	}

	// Loaded by the shopper's browser; the brand signs the query instead of a body
	router.GET("/pixel/conversion", h.Conversion.Pixel)
}
