package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of "orderID|paymentID" keyed by secret.
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signature byte for byte against the expected hex digest in constant time.
// Empty inputs never verify.
func VerifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	if secret == "" || strings.TrimSpace(gatewayOrderID) == "" || strings.TrimSpace(paymentID) == "" {
		return false
	}
	if signature == "" {
		return false
	}
	expected := Sign(secret, gatewayOrderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
