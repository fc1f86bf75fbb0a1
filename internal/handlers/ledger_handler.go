package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/middleware"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/ledger"
)

// LedgerHandler exposes balances, conversion history and conversion review
type LedgerHandler struct {
	ledger *ledger.LedgerService
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(l *ledger.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: l}
}

// GetBalance returns the influencer's pending, available and paid commission
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	influencerID, _ := middleware.InfluencerID(c)

	balance, err := h.ledger.Balance(c.Request.Context(), influencerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// ListConversions lists the influencer's conversions, optionally by status
func (h *LedgerHandler) ListConversions(c *gin.Context) {
	influencerID, _ := middleware.InfluencerID(c)
	page, pageSize := pagination(c)

	status := models.ConversionStatus(strings.ToUpper(c.Query("status")))
	switch status {
	case "", models.ConversionStatusPending, models.ConversionStatusApproved,
		models.ConversionStatusRejected, models.ConversionStatusPaid:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	conversions, total, err := h.ledger.ListForInfluencer(c.Request.Context(), influencerID, status, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversions": conversions,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
	})
}

// ApproveConversion approves a pending conversion
func (h *LedgerHandler) ApproveConversion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversion ID"})
		return
	}

	conv, err := h.ledger.Approve(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// RejectConversionRequest carries the rejection reason
type RejectConversionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectConversion rejects a pending conversion
func (h *LedgerHandler) RejectConversion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversion ID"})
		return
	}

	var req RejectConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.ledger.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}
