// Package signature implements the gateway's payment authentication scheme:
// an HMAC-SHA256 over "<order_id>|<payment_id>" keyed with the API secret,
// transmitted hex-encoded alongside the callback.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Compute returns the hex-encoded HMAC-SHA256 of "orderID|paymentID" under secret.
func Compute(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID))
	mac.Write([]byte("|"))
	mac.Write([]byte(paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the expected signature and compares it against the
// received one in constant time. A mismatch is a legitimate negative outcome,
// not an error; the caller is responsible for logging it.
func Verify(orderID, paymentID, received, secret string) bool {
	expected := Compute(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(received))
}
