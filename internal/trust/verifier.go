// Package trust implements the webid verification decision: may the
// issuer of a presented token speak for the identity the token claims?
package trust

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/solid/oidc-auth-manager/internal/core"
	"github.com/solid/oidc-auth-manager/pkg/origin"
)

// Verifier checks token claims against the identity's own declaration of
// who may issue for it. An issuer is trusted when it shares the
// identity's origin (or the identity sits one subdomain below it), or
// when the identity document explicitly names it as preferred provider.
type Verifier struct {
	issuer    string
	discovery core.Discoverer
}

// New creates a verifier for the provider at issuer. discovery resolves
// preferred providers for identities hosted elsewhere.
func New(issuer string, discovery core.Discoverer) *Verifier {
	return &Verifier{
		issuer:    issuer,
		discovery: discovery,
	}
}

// VerifyWebID derives the webid the claims establish control of.
//
// No claims at all is not an error: the result is simply no webid.
// Otherwise failures carry one of the core sentinel errors:
// ErrMalformedClaims, ErrInvalidIdentityURI, ErrDiscoveryFailed or
// ErrIssuerMismatch. Discovery runs at most once per call and any
// discovery failure denies the webid.
func (v *Verifier) VerifyWebID(ctx context.Context, claims core.Claims) (string, error) {
	if len(claims) == 0 {
		return "", nil
	}

	webid, err := identityFromClaims(claims)
	if err != nil {
		return "", err
	}
	issuer := claims.Issuer()

	if origin.Matches(issuer, webid) {
		return webid, nil
	}

	log.Ctx(ctx).Debug().
		Str("webid", webid).
		Str("issuer", issuer).
		Msg("issuer origin does not cover webid, discovering preferred provider")

	preferred, err := v.discovery.DiscoverPreferredProvider(ctx, webid)
	if err != nil {
		if !errors.Is(err, core.ErrDiscoveryFailed) {
			err = fmt.Errorf("%w: %v", core.ErrDiscoveryFailed, err)
		}
		return "", fmt.Errorf("verifying webid %q: %w", webid, err)
	}

	if origin.TrimSlash(preferred) != origin.TrimSlash(issuer) {
		return "", fmt.Errorf("%w: %q declares provider %q, token issued by %q",
			core.ErrIssuerMismatch, webid, preferred, issuer)
	}
	return webid, nil
}

// FilterAudience reports whether at least one audience entry names this
// provider, by shared origin or as one of its direct subdomains.
func (v *Verifier) FilterAudience(aud []string) bool {
	for _, entry := range aud {
		if origin.Matches(v.issuer, entry) {
			return true
		}
	}
	return false
}

// identityFromClaims picks the identity URI out of the claims: the webid
// claim when present, otherwise a sub claim that parses as a URI.
func identityFromClaims(claims core.Claims) (string, error) {
	if claims.Issuer() == "" {
		return "", fmt.Errorf("%w: missing issuer claim", core.ErrMalformedClaims)
	}
	if webid := claims.WebID(); webid != "" {
		return webid, nil
	}
	sub := claims.Sub()
	if sub == "" {
		return "", fmt.Errorf("%w: no webid or sub claim present", core.ErrMalformedClaims)
	}
	if !origin.IsURI(sub) {
		return "", fmt.Errorf("%w: sub claim %q", core.ErrInvalidIdentityURI, sub)
	}
	return sub, nil
}
