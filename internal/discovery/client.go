// Package discovery resolves which provider an identity declares
// authoritative for itself, by probing the identity's origin and reading
// its profile document.
package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/solid/oidc-auth-manager/internal/audit"
	"github.com/solid/oidc-auth-manager/internal/core"
	"github.com/solid/oidc-auth-manager/internal/metrics"
	"github.com/solid/oidc-auth-manager/pkg/origin"
)

const (
	// DefaultTimeout bounds one full discovery run.
	DefaultTimeout = 10 * time.Second

	wellKnownPath = "/.well-known/openid-configuration"

	// issuerRel is the link relation providers use to announce their
	// issuer on identity documents.
	issuerRel = "http://openid.net/specs/connect/1.0/issuer"

	// oidcIssuerPredicate marks the provider declaration in profile
	// documents, in turtle and json-ld alike.
	oidcIssuerPredicate = "oidcIssuer"

	maxProfileBytes = 1 << 20
)

// Client performs network-backed preferred provider discovery.
type Client struct {
	http *http.Client
}

var _ core.Discoverer = (*Client)(nil)

// New creates a discovery client. timeout bounds every request; zero or
// negative means DefaultTimeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewWithHTTPClient creates a discovery client around an existing HTTP
// client, mainly for tests.
func NewWithHTTPClient(hc *http.Client) *Client {
	return &Client{http: hc}
}

// DiscoverPreferredProvider resolves the provider identityURI declares
// authoritative, trying in order: the identity's own origin (when it
// serves a provider configuration), a Link header on the identity
// document, and finally the profile body. Every failure is reported as
// core.ErrDiscoveryFailed so callers fail closed.
func (c *Client) DiscoverPreferredProvider(ctx context.Context, identityURI string) (string, error) {
	start := time.Now()
	provider, outcome, err := c.discover(ctx, identityURI)
	metrics.ObserveDiscovery(outcome, time.Since(start))
	return provider, err
}

func (c *Client) discover(ctx context.Context, identityURI string) (provider, outcome string, err error) {
	u, err := url.Parse(identityURI)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", "error", fmt.Errorf("%w: identity %q is not an absolute uri", core.ErrDiscoveryFailed, identityURI)
	}

	identityOrigin, err := origin.Origin(identityURI)
	if err != nil {
		return "", "error", fmt.Errorf("%w: identity %q: %v", core.ErrDiscoveryFailed, identityURI, err)
	}

	logger := log.Ctx(ctx)

	if c.providerExists(ctx, identityOrigin) {
		logger.Debug().Str("provider", identityOrigin).Msg("identity origin hosts a provider configuration")
		return identityOrigin, "well_known", nil
	}

	if issuer := c.issuerFromHeaders(ctx, identityURI); issuer != "" {
		logger.Debug().Str("provider", issuer).Msg("provider announced via link header")
		provider, err = validated(issuer)
		return provider, "link_header", err
	}

	issuer, err := c.issuerFromProfile(ctx, identityURI)
	if err != nil {
		return "", "error", fmt.Errorf("%w: fetching profile %q: %v", core.ErrDiscoveryFailed, identityURI, err)
	}
	if issuer == "" {
		return "", "none", fmt.Errorf("%w: %q declares no preferred provider", core.ErrDiscoveryFailed, identityURI)
	}
	logger.Debug().Str("provider", issuer).Msg("provider declared in profile document")
	provider, err = validated(issuer)
	return provider, "profile", err
}

// validated rejects declared providers that are not absolute http(s)
// URIs.
func validated(issuer string) (string, error) {
	if !isHTTPURI(issuer) {
		return "", fmt.Errorf("%w: declared provider %q is not a valid uri", core.ErrDiscoveryFailed, issuer)
	}
	return issuer, nil
}

// newRequest builds an outbound probe request tagged with the provider's
// user agent, correlation ID included when the context carries one.
func (c *Client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	correlationID, _ := ctx.Value("correlation_id").(string)
	req.Header.Set("User-Agent", audit.RequestUserAgent(correlationID))
	return req, nil
}

// providerExists probes origin for an openid configuration document.
// Network errors count as absence, discovery just moves on.
func (c *Client) providerExists(ctx context.Context, origin string) bool {
	req, err := c.newRequest(ctx, http.MethodHead, origin+wellKnownPath)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("origin", origin).Msg("provider configuration probe failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// issuerFromHeaders asks the identity document for its headers and reads
// the provider from the oidc issuer link relation, when present.
func (c *Client) issuerFromHeaders(ctx context.Context, identityURI string) string {
	req, err := c.newRequest(ctx, http.MethodOptions, identityURI)
	if err != nil {
		return ""
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("identity", identityURI).Msg("header probe failed")
		return ""
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return linkByRel(resp.Header.Values("Link"), issuerRel)
}

// issuerFromProfile fetches the identity profile and scans it for the
// provider declaration. Unlike the earlier probes, a failure here is a
// hard error: the profile is the last word on the matter.
func (c *Client) issuerFromProfile(ctx context.Context, identityURI string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, identityURI)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/turtle, application/ld+json;q=0.8, */*;q=0.1")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("profile request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return "", err
	}
	return issuerFromProfileBody(string(body)), nil
}

// linkByRel parses Link headers and returns the target of the first link
// carrying rel. Multiple headers and comma-joined values are accepted.
func linkByRel(headers []string, rel string) string {
	for _, header := range headers {
		for _, link := range strings.Split(header, ",") {
			parts := strings.Split(link, ";")
			if len(parts) < 2 {
				continue
			}
			target := strings.TrimSpace(parts[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			for _, param := range parts[1:] {
				key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
					continue
				}
				value = strings.Trim(strings.TrimSpace(value), `"`)
				for _, r := range strings.Fields(value) {
					if r == rel {
						return strings.Trim(target, "<>")
					}
				}
			}
		}
	}
	return ""
}

// issuerFromProfileBody scans a profile document for the oidcIssuer
// predicate and returns the URI that follows it. The scan is format
// tolerant: it accepts the turtle object form <uri> as well as json-ld
// string values, prefixed or fully qualified predicates alike.
func issuerFromProfileBody(body string) string {
	offset := 0
	for {
		i := strings.Index(body[offset:], oidcIssuerPredicate)
		if i < 0 {
			return ""
		}
		offset += i + len(oidcIssuerPredicate)
		if uri := firstURIRef(body[offset:]); uri != "" {
			return uri
		}
	}
}

// firstURIRef returns the first <...> IRI or quoted absolute http(s) URI
// near the start of s.
func firstURIRef(s string) string {
	window := s
	if len(window) > 512 {
		window = window[:512]
	}
	for i := 0; i < len(window); i++ {
		switch window[i] {
		case '<':
			end := strings.IndexByte(window[i:], '>')
			if end < 0 {
				return ""
			}
			if candidate := window[i+1 : i+end]; isHTTPURI(candidate) {
				return candidate
			}
			i += end
		case '"':
			end := strings.IndexByte(window[i+1:], '"')
			if end < 0 {
				return ""
			}
			if candidate := window[i+1 : i+1+end]; isHTTPURI(candidate) {
				return candidate
			}
			i += end + 1
		}
	}
	return ""
}

func isHTTPURI(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}
