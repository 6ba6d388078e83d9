package audit

import (
	"fmt"

	"github.com/solid/oidc-auth-manager/internal/buildinfo"
)

// RequestUserAgent identifies this provider on outbound requests. It
// carries the correlation ID so a probed server's access logs can be
// matched against the local audit trail.
func RequestUserAgent(correlationID string) string {
	return fmt.Sprintf("oidc-auth-manager/%s (correlation_id=%s)", buildinfo.Version, correlationID)
}
