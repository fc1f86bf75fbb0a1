package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/middleware"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/payout"
	"github.com/shopspring/decimal"
)

// PayoutHandler handles payout requests and the admin payout lifecycle
type PayoutHandler struct {
	payouts *payout.PayoutService
}

// NewPayoutHandler creates a new payout handler
func NewPayoutHandler(p *payout.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: p}
}

// CreatePayoutRequest is an influencer's withdrawal request
type CreatePayoutRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        string          `json:"method" binding:"required"`
	Details       models.JSON     `json:"details"`
	ConversionIDs []uuid.UUID     `json:"conversion_ids"`
}

// CreatePayout opens a payout against the influencer's approved commission
func (h *PayoutHandler) CreatePayout(c *gin.Context) {
	influencerID, _ := middleware.InfluencerID(c)

	var req CreatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	p, err := h.payouts.RequestPayout(c.Request.Context(), payout.PayoutRequest{
		InfluencerID:  influencerID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Method:        req.Method,
		Details:       req.Details,
		ConversionIDs: req.ConversionIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// ListPayouts lists the influencer's payouts
func (h *PayoutHandler) ListPayouts(c *gin.Context) {
	influencerID, _ := middleware.InfluencerID(c)
	page, pageSize := pagination(c)

	payouts, total, err := h.payouts.ListForInfluencer(c.Request.Context(), influencerID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payouts":   payouts,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CancelPayout cancels one of the influencer's own pending payouts
func (h *PayoutHandler) CancelPayout(c *gin.Context) {
	influencerID, _ := middleware.InfluencerID(c)
	id, ok := payoutID(c)
	if !ok {
		return
	}

	p, err := h.payouts.CancelForInfluencer(c.Request.Context(), id, influencerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetPayout returns a payout and its status history
func (h *PayoutHandler) GetPayout(c *gin.Context) {
	id, ok := payoutID(c)
	if !ok {
		return
	}

	p, err := h.payouts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	history, err := h.payouts.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payout": p, "history": history})
}

// ProcessPayout marks a pending payout as processing
func (h *PayoutHandler) ProcessPayout(c *gin.Context) {
	h.adminTransition(c, func(id uuid.UUID, actor *uuid.UUID) (*models.Payout, error) {
		return h.payouts.Process(c.Request.Context(), id, actor)
	})
}

// CompletePayout marks a processing payout as completed
func (h *PayoutHandler) CompletePayout(c *gin.Context) {
	h.adminTransition(c, func(id uuid.UUID, actor *uuid.UUID) (*models.Payout, error) {
		return h.payouts.Complete(c.Request.Context(), id, actor)
	})
}

// FailPayoutRequest carries the failure reason
type FailPayoutRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// FailPayout marks a payout as failed and releases its conversions
func (h *PayoutHandler) FailPayout(c *gin.Context) {
	var req FailPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.adminTransition(c, func(id uuid.UUID, actor *uuid.UUID) (*models.Payout, error) {
		return h.payouts.Fail(c.Request.Context(), id, req.Reason, actor)
	})
}

// RetryPayout returns a failed payout to pending
func (h *PayoutHandler) RetryPayout(c *gin.Context) {
	h.adminTransition(c, func(id uuid.UUID, actor *uuid.UUID) (*models.Payout, error) {
		return h.payouts.Retry(c.Request.Context(), id, actor)
	})
}

// AdminCancelPayout cancels any pending payout
func (h *PayoutHandler) AdminCancelPayout(c *gin.Context) {
	h.adminTransition(c, func(id uuid.UUID, actor *uuid.UUID) (*models.Payout, error) {
		return h.payouts.Cancel(c.Request.Context(), id, actor)
	})
}

func (h *PayoutHandler) adminTransition(c *gin.Context, fn func(id uuid.UUID, actor *uuid.UUID) (*models.Payout, error)) {
	id, ok := payoutID(c)
	if !ok {
		return
	}

	var actor *uuid.UUID
	if userID, ok := middleware.UserID(c); ok {
		actor = &userID
	}

	p, err := fn(id, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func payoutID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payout ID"})
		return uuid.Nil, false
	}
	return id, true
}
