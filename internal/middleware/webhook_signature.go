package middleware

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/utils"
	"gorm.io/gorm"
)

const (
	// SignatureHeader is the base64 HMAC-SHA256 of the request body
	SignatureHeader = "X-Signature"
	// ContextBrand holds the verified *models.Brand
	ContextBrand = "brand"

	maxWebhookBody = 1 << 20
)

// BrandSignatureMiddleware authenticates brand webhooks by the :brand_id
// path parameter and the brand's webhook secret
func BrandSignatureMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		brandID, err := uuid.Parse(c.Param("brand_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid brand ID"})
			c.Abort()
			return
		}

		var brand models.Brand
		if err := db.WithContext(c.Request.Context()).First(&brand, "id = ?", brandID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Brand not found"})
			} else {
				log.Printf("Error loading brand %s: %v", brandID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			c.Abort()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
			c.Abort()
			return
		}

		if !utils.VerifyHMAC(body, c.GetHeader(SignatureHeader), brand.WebhookSecret) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			c.Abort()
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Set(ContextBrand, &brand)
		c.Next()
	}
}
