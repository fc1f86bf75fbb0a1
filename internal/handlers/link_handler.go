package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/middleware"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/tracking"
)

// LinkHandler handles tracking link issuance for influencers
type LinkHandler struct {
	links *tracking.LinkService
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(links *tracking.LinkService) *LinkHandler {
	return &LinkHandler{links: links}
}

// CreateLinkRequest asks for the influencer's link to a product
type CreateLinkRequest struct {
	ProductID  uuid.UUID  `json:"product_id" binding:"required"`
	CampaignID *uuid.UUID `json:"campaign_id"`
}

// LinkResponse is a tracking link with its shareable URL
type LinkResponse struct {
	models.TrackingLink
	ShareURL string `json:"share_url"`
}

// CreateLink returns the influencer's link for a product, creating it on first use
func (h *LinkHandler) CreateLink(c *gin.Context) {
	influencerID, _ := middleware.InfluencerID(c)

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, created, err := h.links.GetOrCreate(c.Request.Context(), influencerID, req.ProductID, req.CampaignID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, LinkResponse{TrackingLink: *link, ShareURL: h.links.ShareURL(*link, link.Product)})
}

// ListLinks lists the influencer's links
func (h *LinkHandler) ListLinks(c *gin.Context) {
	influencerID, _ := middleware.InfluencerID(c)

	links, err := h.links.ListForInfluencer(c.Request.Context(), influencerID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]LinkResponse, len(links))
	for i, link := range links {
		resp[i] = LinkResponse{TrackingLink: link, ShareURL: h.links.ShareURL(link, link.Product)}
	}
	c.JSON(http.StatusOK, gin.H{"links": resp})
}
