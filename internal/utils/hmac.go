package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// SignHMAC creates a base64 HMAC-SHA256 signature of body
func SignHMAC(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// VerifyHMAC verifies an HMAC signature against body.
// Uses constant-time comparison.
func VerifyHMAC(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expectedMAC := SignHMAC(body, secret)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expectedMAC)) == 1
}
