package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/promoledger/backend/internal/utils"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID       = "user_id"
	ContextInfluencerID = "influencer_id"
	ContextIsAdmin      = "is_admin"
)

// AuthMiddleware verifies JWT tokens and adds user info to context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)

		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextIsAdmin, claims.IsAdmin)
		if claims.InfluencerID != nil {
			c.Set(ContextInfluencerID, *claims.InfluencerID)
		}

		c.Next()
	}
}

// AdminMiddleware ensures the user has admin privileges
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextIsAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// InfluencerMiddleware ensures the token belongs to an influencer
func InfluencerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := InfluencerID(c); !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "Influencer account required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// InfluencerID returns the authenticated influencer
func InfluencerID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(ContextInfluencerID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// UserID returns the authenticated user
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// extractToken gets the token from the Authorization header
func extractToken(c *gin.Context) string {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
