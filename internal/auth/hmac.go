package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// maxSignatureSkew bounds how stale a signed request may be.
const maxSignatureSkew = 5 * time.Minute

// VerifySignature checks an HMAC request signature: hex(HMAC-SHA256(secret,
// body || timestamp)) with the timestamp inside the skew window. Enforced
// only when REQUIRE_HMAC is set.
func VerifySignature(body []byte, timestamp, signature, secret string) bool {
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return false
	}

	skew := time.Since(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSignatureSkew {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
