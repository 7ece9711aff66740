package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// trackingTokenBytes gives 128 bits of entropy. The token is the sole
// credential for the public tracking endpoints, so it must not be guessable
// or enumerable.
const trackingTokenBytes = 16

// GenerateTrackingToken returns a random lowercase-hex tracking token.
func GenerateTrackingToken() (string, error) {
	b := make([]byte, trackingTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateRandomBytes generates cryptographically secure random bytes
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}
