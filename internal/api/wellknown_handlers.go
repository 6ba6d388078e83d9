package api

import (
	"net/http"

	"github.com/solid/oidc-auth-manager/internal/api/presenter"
	"github.com/solid/oidc-auth-manager/pkg/origin"
)

// ProviderMetadata is the subset of OpenID Provider metadata this host
// publishes. Clients use it to locate the key set and auth endpoints.
type ProviderMetadata struct {
	Issuer                 string   `json:"issuer"`
	AuthorizationEndpoint  string   `json:"authorization_endpoint"`
	JWKSURI                string   `json:"jwks_uri"`
	IntrospectionEndpoint  string   `json:"introspection_endpoint"`
	EndSessionEndpoint     string   `json:"end_session_endpoint"`
	ScopesSupported        []string `json:"scopes_supported"`
	ResponseTypesSupported []string `json:"response_types_supported"`
	SubjectTypesSupported  []string `json:"subject_types_supported"`
	IDTokenSigningAlgs     []string `json:"id_token_signing_alg_values_supported"`
	ClaimsSupported        []string `json:"claims_supported"`
}

// handleOpenIDConfiguration serves the discovery document for this authority.
func (s *Server) handleOpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	issuer := origin.TrimSlash(s.authority.Issuer)

	doc := ProviderMetadata{
		Issuer:                 issuer,
		AuthorizationEndpoint:  issuer + AuthorizeRoute,
		JWKSURI:                issuer + JWKSRoute,
		IntrospectionEndpoint:  issuer + IntrospectRoute,
		EndSessionEndpoint:     issuer + LogoutRoute,
		ScopesSupported:        []string{"openid", "profile", "webid"},
		ResponseTypesSupported: []string{"code", "id_token token"},
		SubjectTypesSupported:  []string{"public"},
		IDTokenSigningAlgs:     []string{"RS256"},
		ClaimsSupported:        []string{"iss", "sub", "aud", "exp", "iat", "webid"},
	}
	presenter.JSON(w, r, doc, http.StatusOK)
}

// handleJWKS serves the authority's public signing keys.
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, s.authority.Keys.PublicJWKS(), http.StatusOK)
}
