package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Receivers verify X-Signature as hex HMAC-SHA256 over "<X-Signature-Timestamp>.<body>".

// SignHMAC returns lowercase hex of the signature for a delivery sent at ts.
func SignHMAC(secret string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10) + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC checks a signature and rejects timestamps further than maxSkew from now.
func VerifyHMAC(secret, timestamp string, body []byte, provided string, maxSkew time.Duration, now time.Time) bool {
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	ts := time.Unix(unix, 0)
	if d := now.Sub(ts); d > maxSkew || d < -maxSkew {
		return false
	}
	want, err := hex.DecodeString(SignHMAC(secret, ts, body))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}
