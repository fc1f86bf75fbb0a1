package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/promoledger/backend/internal/apperrors"
)

// statusFor maps a service error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrDuplicateConversion):
		return http.StatusOK
	case errors.Is(err, apperrors.ErrNoAttribution), errors.Is(err, apperrors.ErrAttributionExpired):
		return http.StatusAccepted
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrInsufficientBalance),
		errors.Is(err, apperrors.ErrAmountMismatch),
		errors.Is(err, apperrors.ErrInsufficientApprovedConversions):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrCampaignIneligible):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are logged
// and hidden from the caller.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Error handling %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var ineligible *apperrors.CampaignIneligibleError
	if errors.As(err, &ineligible) {
		body["reason"] = ineligible.Reason
	}
	c.JSON(status, body)
}

// pagination reads page and page_size with the usual defaults
func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
