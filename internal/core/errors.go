package core

import "errors"

// Sentinel failures of webid verification. Call sites wrap these with
// request detail via fmt.Errorf("...: %w", ...); consumers branch with
// errors.Is.
var (
	// ErrMalformedClaims marks claim sets that cannot name an identity:
	// the issuer claim is missing, or neither webid nor sub is present.
	ErrMalformedClaims = errors.New("malformed identity claims")

	// ErrInvalidIdentityURI marks a sub claim standing in for a webid
	// that does not parse as an absolute URI.
	ErrInvalidIdentityURI = errors.New("identity is not a valid uri")

	// ErrIssuerMismatch marks tokens whose issuer is not the provider
	// the identity itself declares authoritative.
	ErrIssuerMismatch = errors.New("issuer not authoritative for identity")

	// ErrDiscoveryFailed marks a failed attempt to learn which provider
	// an identity prefers. Verification fails closed on it.
	ErrDiscoveryFailed = errors.New("preferred provider discovery failed")
)
