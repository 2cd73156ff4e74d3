package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const paymentTokenBytes = 32

// NewPaymentToken returns 32 random bytes encoded as unpadded base64url. The
// token is the only credential a parent holds, so it is never derived from ids.
func NewPaymentToken() (string, error) {
	buf := make([]byte, paymentTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("payment token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
