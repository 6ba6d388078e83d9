package client

import (
	"context"
	"net/url"

	"github.com/go-jose/go-jose/v4"

	"github.com/solid/oidc-auth-manager/internal/api"
)

// OpenIDConfiguration fetches the authority's discovery document.
func (c *Client) OpenIDConfiguration(ctx context.Context) (*api.ProviderMetadata, string, error) {
	var doc api.ProviderMetadata
	correlation, err := c.get(ctx, c.url().
		setPath(api.OpenIDConfigurationRoute).
		build(), &doc)
	return &doc, correlation, err
}

// JWKS fetches the authority's public signing keys.
func (c *Client) JWKS(ctx context.Context) (*jose.JSONWebKeySet, string, error) {
	var keys jose.JSONWebKeySet
	correlation, err := c.get(ctx, c.url().
		setPath(api.JWKSRoute).
		build(), &keys)
	return &keys, correlation, err
}

// Introspect asks the authority whether token is live and which webid it
// speaks for.
func (c *Client) Introspect(ctx context.Context, token string) (*api.IntrospectionResponse, string, error) {
	var resp api.IntrospectionResponse
	correlation, err := c.postForm(ctx, c.url().
		setPath(api.IntrospectRoute).
		build(), url.Values{"token": {token}}, &resp)
	return &resp, correlation, err
}
