package handlers

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/apperrors"
	"github.com/promoledger/backend/internal/middleware"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/attribution"
	"github.com/promoledger/backend/internal/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// transparentGIF is a 1x1 transparent GIF
var transparentGIF, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

// ConversionHandler receives purchase notifications from brands
type ConversionHandler struct {
	db          *gorm.DB
	attribution *attribution.AttributionService
	cookieName  string
}

// NewConversionHandler creates a new conversion handler
func NewConversionHandler(db *gorm.DB, attr *attribution.AttributionService, cookieName string) *ConversionHandler {
	return &ConversionHandler{
		db:          db,
		attribution: attr,
		cookieName:  cookieName,
	}
}

// PurchaseRequest is the brand webhook body. Either tracking_link_id (from the
// attribution cookie) or code identifies the link.
type PurchaseRequest struct {
	TrackingLinkID string          `json:"tracking_link_id"`
	Code           string          `json:"code"`
	OrderID        string          `json:"order_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" binding:"required"`
}

// Webhook handles POST /webhooks/brands/:brand_id/conversions
func (h *ConversionHandler) Webhook(c *gin.Context) {
	brand := c.MustGet(middleware.ContextBrand).(*models.Brand)

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	purchase := attribution.Purchase{
		BrandID:  &brand.ID,
		OrderID:  req.OrderID,
		Amount:   req.Amount,
		Currency: req.Currency,
	}

	var conv *models.Conversion
	var err error
	switch {
	case req.TrackingLinkID != "":
		linkID, parseErr := uuid.Parse(req.TrackingLinkID)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tracking_link_id"})
			return
		}
		purchase.TrackingLinkID = linkID
		conv, err = h.attribution.Attribute(c.Request.Context(), purchase)
	case req.Code != "":
		conv, err = h.attribution.AttributeByCode(c.Request.Context(), req.Code, purchase)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "tracking_link_id or code is required"})
		return
	}

	h.respond(c, conv, err)
}

func (h *ConversionHandler) respond(c *gin.Context, conv *models.Conversion, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"attributed": true, "conversion": conv})
	case errors.Is(err, apperrors.ErrDuplicateConversion):
		c.JSON(http.StatusOK, gin.H{"attributed": true, "duplicate": true, "conversion": conv})
	case errors.Is(err, apperrors.ErrNoAttribution), errors.Is(err, apperrors.ErrAttributionExpired):
		c.JSON(http.StatusAccepted, gin.H{"attributed": false, "reason": err.Error()})
	default:
		respondError(c, err)
	}
}

// Pixel handles GET /pixel/conversion. The brand renders the pixel URL with
// brand_id and sig, the base64 HMAC of PixelPayload under its webhook secret.
// The attribution cookie names the link. It always answers with the image.
func (h *ConversionHandler) Pixel(c *gin.Context) {
	defer c.Data(http.StatusOK, "image/gif", transparentGIF)
	c.Header("Cache-Control", "no-store")

	cookie, err := c.Cookie(h.cookieName)
	if err != nil || cookie == "" {
		c.Header("X-Attribution", "none")
		return
	}
	linkID, err := uuid.Parse(cookie)
	if err != nil {
		c.Header("X-Attribution", "none")
		return
	}

	orderID := c.Query("order_id")
	rawAmount := c.Query("amount")
	currency := c.DefaultQuery("currency", "USD")

	brand, err := h.pixelBrand(c, orderID, rawAmount, currency)
	if err != nil {
		log.Printf("Error loading pixel brand: %v", err)
		c.Header("X-Attribution", "error")
		return
	}
	if brand == nil {
		c.Header("X-Attribution", "unsigned")
		return
	}

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		c.Header("X-Attribution", "invalid")
		return
	}

	_, err = h.attribution.Attribute(c.Request.Context(), attribution.Purchase{
		BrandID:        &brand.ID,
		TrackingLinkID: linkID,
		OrderID:        orderID,
		Amount:         amount,
		Currency:       currency,
	})
	switch {
	case err == nil:
		c.Header("X-Attribution", "booked")
	case errors.Is(err, apperrors.ErrDuplicateConversion):
		c.Header("X-Attribution", "duplicate")
	case statusFor(err) == http.StatusInternalServerError:
		log.Printf("Error attributing pixel conversion: %v", err)
		c.Header("X-Attribution", "error")
	default:
		c.Header("X-Attribution", "none")
	}
}

// pixelBrand returns the brand whose signature the pixel carries, or nil when
// the brand is unknown or the signature does not verify
func (h *ConversionHandler) pixelBrand(c *gin.Context, orderID, amount, currency string) (*models.Brand, error) {
	brandID, err := uuid.Parse(c.Query("brand_id"))
	if err != nil {
		return nil, nil
	}

	var brand models.Brand
	if err := h.db.WithContext(c.Request.Context()).First(&brand, "id = ?", brandID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if !utils.VerifyHMAC(PixelPayload(orderID, amount, currency), c.Query("sig"), brand.WebhookSecret) {
		return nil, nil
	}
	return &brand, nil
}

// PixelPayload is the message a brand signs for a pixel conversion
func PixelPayload(orderID, amount, currency string) []byte {
	return []byte(orderID + "|" + amount + "|" + currency)
}
