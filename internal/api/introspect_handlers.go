package api

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/solid/oidc-auth-manager/internal/api/middleware"
	"github.com/solid/oidc-auth-manager/internal/api/presenter"
	"github.com/solid/oidc-auth-manager/internal/audit"
	"github.com/solid/oidc-auth-manager/internal/core"
	"github.com/solid/oidc-auth-manager/internal/metrics"
)

// IntrospectionResponse follows RFC 7662, extended with the webid the
// token establishes control of.
type IntrospectionResponse struct {
	Active bool     `json:"active"`
	Scope  string   `json:"scope,omitempty"`
	Sub    string   `json:"sub,omitempty"`
	Aud    []string `json:"aud,omitempty"`
	Iss    string   `json:"iss,omitempty"`
	Exp    int64    `json:"exp,omitempty"`
	Iat    int64    `json:"iat,omitempty"`
	WebID  string   `json:"webid,omitempty"`
}

// handleIntrospect answers whether a token issued by this authority is
// live and which webid it speaks for. Per RFC 7662 every verification
// failure is reported as an inactive token, not as an error status.
func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx)
	reqID := middleware.CorrelationCtx(ctx)

	auditEntry := core.AuditEntry{
		ID:     reqID,
		Time:   time.Now(),
		Action: "token.introspect",
	}
	defer func() {
		if err := s.auditor.Log(auditEntry); err != nil {
			logger.Error().Err(err).Msg("failed to write audit log")
		}
	}()

	token := r.FormValue("token")
	if token == "" {
		presenter.Error(w, r, "token parameter required", http.StatusBadRequest)
		auditEntry.Error = "token parameter required"
		return
	}
	auditEntry.Metadata = map[string]any{
		"fingerprint": audit.TokenFingerprint(token),
	}

	inactive := func(reason string) {
		logger.Warn().Str("reason", reason).Msg("token introspection rejected")
		auditEntry.Error = reason
		presenter.JSON(w, r, IntrospectionResponse{Active: false}, http.StatusOK)
	}

	parsed, err := jwt.Parse(token, s.authority.Keys.Keyfunc)
	if err != nil || !parsed.Valid {
		inactive("signature verification failed")
		return
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		inactive("unreadable claims")
		return
	}
	claims := core.Claims(mapClaims)

	webid, err := s.verifier.VerifyWebID(ctx, claims)
	metrics.ObserveVerification(metrics.VerificationResult(webid, err))
	if err != nil {
		inactive("webid verification failed: " + err.Error())
		return
	}

	aud := claims.Audience()
	if len(aud) > 0 && !s.verifier.FilterAudience(aud) {
		inactive("audience does not include this authority")
		return
	}

	resp := IntrospectionResponse{
		Active: true,
		Sub:    claims.Sub(),
		Aud:    aud,
		Iss:    claims.Issuer(),
		WebID:  webid,
	}
	if scope, ok := claims["scope"].(string); ok {
		resp.Scope = scope
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		resp.Exp = exp.Unix()
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		resp.Iat = iat.Unix()
	}

	auditEntry.Granted = true
	auditEntry.WebID = webid
	auditEntry.Issuer = resp.Iss

	presenter.JSON(w, r, resp, http.StatusOK)
}
