package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/promoledger/backend/internal/apperrors"
	"github.com/promoledger/backend/internal/services/tracking"
)

// ClickHandler serves the public redirect
type ClickHandler struct {
	clicks     *tracking.ClickService
	cookieName string
	cookieAge  int
	homeURL    string
	secure     bool
}

// NewClickHandler creates a new click handler
func NewClickHandler(clicks *tracking.ClickService, cookieName string, cookieDays int, homeURL string, secure bool) *ClickHandler {
	return &ClickHandler{
		clicks:     clicks,
		cookieName: cookieName,
		cookieAge:  cookieDays * 24 * 60 * 60,
		homeURL:    homeURL,
		secure:     secure,
	}
}

// Redirect records the click and sends the visitor to the product page.
// Unknown codes and internal failures still redirect, to the home page.
func (h *ClickHandler) Redirect(c *gin.Context) {
	result, err := h.clicks.RecordClick(c.Request.Context(), c.Param("code"), tracking.ClickMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referrer:  c.Request.Referer(),
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("Error recording click for %s: %v", c.Param("code"), err)
		}
		c.Redirect(http.StatusFound, h.homeURL)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, result.TrackingLinkID.String(), h.cookieAge, "/", "", h.secure, true)
	c.Redirect(http.StatusFound, result.DestinationURL)
}
