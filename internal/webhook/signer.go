package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 of body under secret
// (spec.md §4.7 step 2). crypto/hmac and crypto/sha256 are stdlib; no
// third-party payload-signing library appears anywhere in the example
// pack, so this is a justified stdlib use (see DESIGN.md).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
