package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateReference generates a human readable reference like PAY_20240301_7GQ2K9XA
func GenerateReference(prefix string, now time.Time) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, 8)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		result[i] = charset[n.Int64()]
	}

	return fmt.Sprintf("%s_%s_%s", prefix, now.UTC().Format("20060102"), string(result))
}
