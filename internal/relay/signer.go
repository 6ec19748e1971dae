package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Signer authenticates webhook payloads toward the backend. The signature is
// HMAC-SHA256 over "<trackId>:<success>:<status>" using the shared secret,
// with success and status rendered exactly as the gateway encoded them so the
// backend can recompute the digest from its own copy of the callback.
type Signer struct {
	Secret string
}

// Sign computes the lowercase hex signature for one callback.
func (s Signer) Sign(trackID string, success, status int) string {
	mac := hmac.New(sha256.New, []byte(s.Secret))
	_, _ = mac.Write([]byte(trackID))
	_, _ = mac.Write([]byte(":"))
	_, _ = mac.Write([]byte(strconv.Itoa(success)))
	_, _ = mac.Write([]byte(":"))
	_, _ = mac.Write([]byte(strconv.Itoa(status)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether the provided signature matches the expected
// one. Comparison is constant time.
func (s Signer) VerifySignature(trackID string, success, status int, provided string) bool {
	expected := s.Sign(trackID, success, status)
	return hmac.Equal([]byte(expected), []byte(provided))
}
