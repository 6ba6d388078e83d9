package discovery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solid/oidc-auth-manager/internal/audit"
	"github.com/solid/oidc-auth-manager/internal/core"
)

type profileServer struct {
	wellKnown     bool
	linkHeader    string
	profileBody   string
	profileStatus int
}

func (p *profileServer) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		if p.wellKnown {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/profile/card", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			if p.linkHeader != "" {
				w.Header().Set("Link", p.linkHeader)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if p.profileStatus != 0 {
			w.WriteHeader(p.profileStatus)
			return
		}
		w.Header().Set("Content-Type", "text/turtle")
		io.WriteString(w, p.profileBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverIdentityOriginIsProvider(t *testing.T) {
	srv := (&profileServer{wellKnown: true}).start(t)

	c := NewWithHTTPClient(srv.Client())
	got, err := c.DiscoverPreferredProvider(context.Background(), srv.URL+"/profile/card#me")
	if err != nil {
		t.Fatalf("DiscoverPreferredProvider: %v", err)
	}
	if got != srv.URL {
		t.Errorf("provider = %q, want identity origin %q", got, srv.URL)
	}
}

func TestDiscoverViaLinkHeader(t *testing.T) {
	srv := (&profileServer{
		linkHeader: `<https://idp.example.org>; rel="http://openid.net/specs/connect/1.0/issuer"`,
	}).start(t)

	c := NewWithHTTPClient(srv.Client())
	got, err := c.DiscoverPreferredProvider(context.Background(), srv.URL+"/profile/card")
	if err != nil {
		t.Fatalf("DiscoverPreferredProvider: %v", err)
	}
	if got != "https://idp.example.org" {
		t.Errorf("provider = %q, want link header target", got)
	}
}

func TestDiscoverViaProfileBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "turtle with prefixed predicate",
			body: "@prefix solid: <http://www.w3.org/ns/solid/terms#> .\n" +
				"<#me> solid:oidcIssuer <https://idp.example.org> .\n",
		},
		{
			name: "turtle with full predicate iri",
			body: "<#me> <http://www.w3.org/ns/solid/terms#oidcIssuer> <https://idp.example.org> .\n",
		},
		{
			name: "json-ld",
			body: `{"@id": "#me", "solid:oidcIssuer": {"@id": "https://idp.example.org"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := (&profileServer{profileBody: tt.body}).start(t)

			c := NewWithHTTPClient(srv.Client())
			got, err := c.DiscoverPreferredProvider(context.Background(), srv.URL+"/profile/card")
			if err != nil {
				t.Fatalf("DiscoverPreferredProvider: %v", err)
			}
			if got != "https://idp.example.org" {
				t.Errorf("provider = %q, want declared issuer", got)
			}
		})
	}
}

func TestDiscoverNoDeclaration(t *testing.T) {
	srv := (&profileServer{profileBody: "<#me> a <http://xmlns.com/foaf/0.1/Person> .\n"}).start(t)

	c := NewWithHTTPClient(srv.Client())
	_, err := c.DiscoverPreferredProvider(context.Background(), srv.URL+"/profile/card")
	if !errors.Is(err, core.ErrDiscoveryFailed) {
		t.Errorf("error = %v, want ErrDiscoveryFailed", err)
	}
}

func TestDiscoverProfileFetchFails(t *testing.T) {
	srv := (&profileServer{profileStatus: http.StatusInternalServerError}).start(t)

	c := NewWithHTTPClient(srv.Client())
	_, err := c.DiscoverPreferredProvider(context.Background(), srv.URL+"/profile/card")
	if !errors.Is(err, core.ErrDiscoveryFailed) {
		t.Errorf("error = %v, want ErrDiscoveryFailed", err)
	}
}

func TestDiscoverSendsTaggedUserAgent(t *testing.T) {
	var got string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewWithHTTPClient(srv.Client())
	ctx := context.WithValue(context.Background(), "correlation_id", "d1kq34ur873bs66ageag")
	if _, err := c.DiscoverPreferredProvider(ctx, srv.URL+"/profile/card#me"); err != nil {
		t.Fatalf("DiscoverPreferredProvider: %v", err)
	}

	if want := audit.RequestUserAgent("d1kq34ur873bs66ageag"); got != want {
		t.Errorf("User-Agent = %q, want %q", got, want)
	}
}

func TestDiscoverRejectsBadIdentityURI(t *testing.T) {
	c := New(0)
	for _, uri := range []string{"", "not-a-uri", "/relative/path"} {
		if _, err := c.DiscoverPreferredProvider(context.Background(), uri); !errors.Is(err, core.ErrDiscoveryFailed) {
			t.Errorf("identity %q: error = %v, want ErrDiscoveryFailed", uri, err)
		}
	}
}

func TestLinkByRel(t *testing.T) {
	const rel = "http://openid.net/specs/connect/1.0/issuer"

	tests := []struct {
		name    string
		headers []string
		want    string
	}{
		{
			name:    "single link",
			headers: []string{`<https://idp.example.org>; rel="http://openid.net/specs/connect/1.0/issuer"`},
			want:    "https://idp.example.org",
		},
		{
			name:    "comma joined links",
			headers: []string{`<https://other>; rel="stylesheet", <https://idp.example.org>; rel="http://openid.net/specs/connect/1.0/issuer"`},
			want:    "https://idp.example.org",
		},
		{
			name:    "multiple rel values",
			headers: []string{`<https://idp.example.org>; rel="describedby http://openid.net/specs/connect/1.0/issuer"`},
			want:    "https://idp.example.org",
		},
		{
			name:    "relation absent",
			headers: []string{`<https://other>; rel="stylesheet"`},
			want:    "",
		},
		{
			name:    "no headers",
			headers: nil,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := linkByRel(tt.headers, rel); got != tt.want {
				t.Errorf("linkByRel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIssuerFromProfileBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", ""},
		{"unrelated triples", "<#me> a <http://xmlns.com/foaf/0.1/Person> .", ""},
		{"predicate without object", "<#me> solid:oidcIssuer", ""},
		{
			"relative object skipped",
			`<#me> solid:oidcIssuer <#nope> ; solid:oidcIssuer <https://idp.example.org> .`,
			"https://idp.example.org",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := issuerFromProfileBody(tt.body); got != tt.want {
				t.Errorf("issuerFromProfileBody = %q, want %q", got, tt.want)
			}
		})
	}
}
