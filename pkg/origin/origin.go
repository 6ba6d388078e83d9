// Package origin implements the URI origin and subdomain comparisons used
// to decide whether a token issuer speaks for an identity.
package origin

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Origin returns the scheme://host[:port] prefix of an absolute http(s)
// URI. Scheme and host are lowercased and scheme-default ports (80, 443)
// are stripped, so two spellings of the same origin compare equal.
func Origin(uri string) (string, error) {
	u, err := parse(uri)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Scheme) + "://" + hostPort(u), nil
}

// IsSubdomain reports whether candidate's host sits exactly one DNS label
// below authority's host, on the same scheme and port. The relation is
// directional: IsSubdomain(a, b) says nothing about IsSubdomain(b, a).
// URIs that fail to parse never match.
func IsSubdomain(candidate, authority string) bool {
	cu, err := parse(candidate)
	if err != nil {
		return false
	}
	au, err := parse(authority)
	if err != nil {
		return false
	}
	if !strings.EqualFold(cu.Scheme, au.Scheme) {
		return false
	}
	parts := strings.SplitN(hostPort(cu), ".", 2)
	if len(parts) != 2 {
		return false
	}
	return parts[1] == hostPort(au)
}

// Matches reports whether candidate shares authority's origin, or is a
// direct subdomain of it. Used with the token issuer as authority and the
// identity URI as candidate.
func Matches(authority, candidate string) bool {
	ao, aerr := Origin(authority)
	co, cerr := Origin(candidate)
	if aerr == nil && cerr == nil && ao == co {
		return true
	}
	return IsSubdomain(candidate, authority)
}

// IsURI reports whether s parses as an absolute URI with some substance
// beyond the scheme.
func IsURI(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != "" || u.Path != ""
}

// TrimSlash removes a single trailing slash, so issuer URIs stored with
// and without one compare equal.
func TrimSlash(uri string) string {
	return strings.TrimSuffix(uri, "/")
}

func parse(uri string) (*url.URL, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("uri %q: scheme %q has no origin", uri, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("uri %q: missing host", uri)
	}
	return u, nil
}

// hostPort renders host[:port] with the port omitted when it is the
// scheme default, mirroring how browsers print origins.
func hostPort(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || port == defaultPort(strings.ToLower(u.Scheme)) {
		return host
	}
	return net.JoinHostPort(host, port)
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}
