package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// VerifyRazorpayWebhookSignature checks X-Razorpay-Signature against the raw body.
func VerifyRazorpayWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}
	return verifyHMAC(payload, sig, []byte(secret))
}

// VerifyRazorpaySubscriptionSignature checks the subscription checkout
// signature, the HMAC of "<payment id>|<subscription id>". One-off orders sign
// the reverse order; this gateway never creates those.
func VerifyRazorpaySubscriptionSignature(subscriptionID, paymentID, signature, keySecret string) bool {
	if subscriptionID == "" || paymentID == "" || strings.TrimSpace(signature) == "" || keySecret == "" {
		return false
	}
	return verifyHMAC([]byte(paymentID+"|"+subscriptionID), strings.TrimSpace(signature), []byte(keySecret))
}

// VerifyCashfreeSignature checks HMAC-SHA256(order_id + order_amount +
// order_currency). amount must be the string exactly as it appeared in the
// payload; reformatting it breaks the signature.
func VerifyCashfreeSignature(orderID, amount, currency, signature, secret string) bool {
	if orderID == "" || amount == "" || strings.TrimSpace(signature) == "" || secret == "" {
		return false
	}
	return verifyHMAC([]byte(orderID+amount+currency), strings.TrimSpace(signature), []byte(secret))
}

// verifyHMAC accepts hex or base64 encoded signatures.
func verifyHMAC(payload []byte, signature string, secret []byte) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	if decoded, err := hex.DecodeString(strings.ToLower(signature)); err == nil {
		return hmac.Equal(expected, decoded)
	}
	if decoded, err := base64.StdEncoding.DecodeString(signature); err == nil {
		return hmac.Equal(expected, decoded)
	}
	return false
}

func signHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
