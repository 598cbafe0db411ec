package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SignatureHeader carries the webhook body signature.
const SignatureHeader = "X-Razorpay-Signature"

func hmacHex(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of the raw webhook body
// against the X-Razorpay-Signature header value.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return constantTimeEqual(hmacHex(secret, body), signature)
}

// VerifyPaymentSignature checks the checkout callback signature, computed by
// the gateway over "<order_id>|<payment_id>" with the key secret.
func VerifyPaymentSignature(keySecret, gatewayOrderID, gatewayPaymentID, signature string) bool {
	if keySecret == "" || signature == "" {
		return false
	}
	return constantTimeEqual(hmacHex(keySecret, []byte(gatewayOrderID+"|"+gatewayPaymentID)), signature)
}
