package utils

import (
	"errors"
	"os"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

// Claims represents the JWT claims issued by the identity service.
// InfluencerID is nil for brand and admin users.
type Claims struct {
	UserID       uuid.UUID  `json:"user_id"`
	InfluencerID *uuid.UUID `json:"influencer_id,omitempty"`
	IsAdmin      bool       `json:"is_admin"`
	jwt.StandardClaims
}

var jwtSecret string

// SetJWTSecret overrides the secret read from JWT_SECRET
func SetJWTSecret(secret string) {
	jwtSecret = secret
}

// getJWTSecret returns the configured secret or a default for development
func getJWTSecret() string {
	if jwtSecret != "" {
		return jwtSecret
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		// Default secret for development only
		return "promoledger_development_jwt_secret_key"
	}
	return secret
}

// GenerateToken signs an access token. Tokens are normally issued by the
// identity service; this exists for local tooling and tests.
func GenerateToken(claims Claims, ttl time.Duration) (string, error) {
	claims.StandardClaims.ExpiresAt = time.Now().Add(ttl).Unix()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(getJWTSecret()))
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(getJWTSecret()), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("failed to parse token claims")
	}

	return claims, nil
}
