package trust

import (
	"context"
	"errors"
	"testing"

	"github.com/solid/oidc-auth-manager/internal/core"
)

const localIssuer = "https://idp.example.com"

type fakeDiscoverer struct {
	provider string
	err      error
	calls    int
	lastURI  string
}

func (f *fakeDiscoverer) DiscoverPreferredProvider(ctx context.Context, identityURI string) (string, error) {
	f.calls++
	f.lastURI = identityURI
	if f.err != nil {
		return "", f.err
	}
	return f.provider, nil
}

func TestVerifyWebIDNoClaims(t *testing.T) {
	disco := &fakeDiscoverer{}
	v := New(localIssuer, disco)

	for name, claims := range map[string]core.Claims{"nil": nil, "empty": {}} {
		webid, err := v.VerifyWebID(context.Background(), claims)
		if err != nil {
			t.Errorf("%s claims: unexpected error %v", name, err)
		}
		if webid != "" {
			t.Errorf("%s claims: webid = %q, want none", name, webid)
		}
	}
	if disco.calls != 0 {
		t.Errorf("discovery ran %d times for absent claims", disco.calls)
	}
}

func TestVerifyWebIDDirectMatch(t *testing.T) {
	tests := []struct {
		name   string
		claims core.Claims
		want   string
	}{
		{
			name: "issuer shares the webid origin",
			claims: core.Claims{
				"iss":   "https://example.com",
				"webid": "https://example.com/profile/card#me",
			},
			want: "https://example.com/profile/card#me",
		},
		{
			name: "webid one subdomain below the issuer",
			claims: core.Claims{
				"iss":   "https://example.com",
				"webid": "https://alice.example.com/profile#me",
			},
			want: "https://alice.example.com/profile#me",
		},
		{
			name: "uri sub claim stands in for the webid",
			claims: core.Claims{
				"iss": "https://example.com",
				"sub": "https://example.com/people/bob#i",
			},
			want: "https://example.com/people/bob#i",
		},
		{
			name: "webid claim wins over sub",
			claims: core.Claims{
				"iss":   "https://example.com",
				"webid": "https://example.com/card#me",
				"sub":   "opaque-account-id",
			},
			want: "https://example.com/card#me",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disco := &fakeDiscoverer{}
			got, err := New(localIssuer, disco).VerifyWebID(context.Background(), tt.claims)
			if err != nil {
				t.Fatalf("VerifyWebID: %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifyWebID = %q, want %q", got, tt.want)
			}
			if disco.calls != 0 {
				t.Errorf("discovery ran %d times on a direct match", disco.calls)
			}
		})
	}
}

func TestVerifyWebIDMalformedClaims(t *testing.T) {
	tests := []struct {
		name    string
		claims  core.Claims
		wantErr error
	}{
		{
			name:    "missing issuer",
			claims:  core.Claims{"webid": "https://alice.example.com/card#me"},
			wantErr: core.ErrMalformedClaims,
		},
		{
			name:    "neither webid nor sub",
			claims:  core.Claims{"iss": "https://example.com"},
			wantErr: core.ErrMalformedClaims,
		},
		{
			name:    "sub is not a uri",
			claims:  core.Claims{"iss": "https://example.com", "sub": "alice"},
			wantErr: core.ErrInvalidIdentityURI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disco := &fakeDiscoverer{}
			_, err := New(localIssuer, disco).VerifyWebID(context.Background(), tt.claims)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifyWebID error = %v, want %v", err, tt.wantErr)
			}
			if disco.calls != 0 {
				t.Errorf("discovery ran %d times on malformed claims", disco.calls)
			}
		})
	}
}

func TestVerifyWebIDDiscoveryConfirms(t *testing.T) {
	disco := &fakeDiscoverer{provider: "https://other-idp.example.org/"}
	claims := core.Claims{
		"iss":   "https://other-idp.example.org",
		"webid": "https://alice.example.com/profile#me",
	}

	got, err := New(localIssuer, disco).VerifyWebID(context.Background(), claims)
	if err != nil {
		t.Fatalf("VerifyWebID: %v", err)
	}
	if got != "https://alice.example.com/profile#me" {
		t.Errorf("VerifyWebID = %q", got)
	}
	if disco.calls != 1 {
		t.Errorf("discovery ran %d times, want exactly 1", disco.calls)
	}
	if disco.lastURI != "https://alice.example.com/profile#me" {
		t.Errorf("discovery asked about %q, want the webid", disco.lastURI)
	}
}

func TestVerifyWebIDDiscoveryRejects(t *testing.T) {
	disco := &fakeDiscoverer{provider: "https://trusted-idp.example.org"}
	claims := core.Claims{
		"iss":   "https://rogue-idp.example.net",
		"webid": "https://alice.example.com/profile#me",
	}

	_, err := New(localIssuer, disco).VerifyWebID(context.Background(), claims)
	if !errors.Is(err, core.ErrIssuerMismatch) {
		t.Errorf("VerifyWebID error = %v, want ErrIssuerMismatch", err)
	}
	if disco.calls != 1 {
		t.Errorf("discovery ran %d times, want exactly 1", disco.calls)
	}
}

func TestVerifyWebIDSubdomainRuleIsDirectional(t *testing.T) {
	// issuer on the subdomain, webid on the parent: no direct trust,
	// so the decision must go through discovery
	disco := &fakeDiscoverer{provider: "https://trusted-idp.example.org"}
	claims := core.Claims{
		"iss":   "https://idp.alice.example.com",
		"webid": "https://alice.example.com/profile#me",
	}

	_, err := New(localIssuer, disco).VerifyWebID(context.Background(), claims)
	if !errors.Is(err, core.ErrIssuerMismatch) {
		t.Errorf("VerifyWebID error = %v, want ErrIssuerMismatch", err)
	}
	if disco.calls != 1 {
		t.Errorf("discovery ran %d times, want 1", disco.calls)
	}
}

func TestVerifyWebIDFailsClosedOnDiscoveryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"tagged discovery error", core.ErrDiscoveryFailed},
		{"plain network error", errors.New("dial tcp: connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disco := &fakeDiscoverer{err: tt.err}
			claims := core.Claims{
				"iss":   "https://other-idp.example.org",
				"webid": "https://alice.example.com/profile#me",
			}

			_, err := New(localIssuer, disco).VerifyWebID(context.Background(), claims)
			if !errors.Is(err, core.ErrDiscoveryFailed) {
				t.Errorf("VerifyWebID error = %v, want ErrDiscoveryFailed", err)
			}
		})
	}
}

func TestFilterAudience(t *testing.T) {
	v := New(localIssuer, &fakeDiscoverer{})

	tests := []struct {
		name string
		aud  []string
		want bool
	}{
		{"provider itself", []string{localIssuer}, true},
		{"provider with path", []string{"https://idp.example.com/authorize"}, true},
		{"subdomain of the provider", []string{"https://app.idp.example.com"}, true},
		{"any entry suffices", []string{"https://unrelated.example.net", localIssuer}, true},
		{"unrelated audience", []string{"https://unrelated.example.net"}, false},
		{"parent domain of the provider", []string{"https://example.com"}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.FilterAudience(tt.aud); got != tt.want {
				t.Errorf("FilterAudience(%v) = %v, want %v", tt.aud, got, tt.want)
			}
		})
	}
}
