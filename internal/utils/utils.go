package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// LinkCodeBytes is the entropy of a tracking link code (128 bits)
const LinkCodeBytes = 16

// GenerateLinkCode returns an unguessable, URL-safe, unpadded code
func GenerateLinkCode() (string, error) {
	b := make([]byte, LinkCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
