package audit

import (
	"crypto/sha256"
	"encoding/base64"
)

// TokenFingerprint derives a stable identifier for a presented token so
// audit entries can reference it without storing the token itself.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(hash[:])
}
