package api

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/solid/oidc-auth-manager/internal/core"
	"github.com/solid/oidc-auth-manager/internal/keychain"
)

// signAccessToken signs claims with the authority's own access token key.
func signAccessToken(t *testing.T, keys *keychain.Keychain, claims jwt.MapClaims) string {
	t.Helper()

	priv, err := keys.AccessTokenSigner()
	if err != nil {
		t.Fatalf("loading signer: %v", err)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = keys.AccessTokenKey.KeyID

	signed, err := tok.SignedString(priv)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func introspect(t *testing.T, env *testEnv, token string) IntrospectionResponse {
	t.Helper()

	form := url.Values{"token": {token}}
	w := env.postForm(t, IntrospectRoute, form.Encode(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp IntrospectionResponse
	decodeJSON(t, w, &resp)
	return resp
}

func TestIntrospectActiveToken(t *testing.T) {
	env := newTestEnv(t)

	webid := testIssuer + "/people/alice#me"
	exp := time.Now().Add(time.Hour)
	token := signAccessToken(t, env.authority.Keys, jwt.MapClaims{
		"iss":   testIssuer,
		"sub":   "alice",
		"webid": webid,
		"aud":   []string{testIssuer},
		"exp":   exp.Unix(),
		"iat":   time.Now().Unix(),
		"scope": "openid webid",
	})

	resp := introspect(t, env, token)
	if !resp.Active {
		t.Fatal("token reported inactive")
	}
	if resp.WebID != webid {
		t.Errorf("webid = %q, want %q", resp.WebID, webid)
	}
	if resp.Iss != testIssuer {
		t.Errorf("iss = %q", resp.Iss)
	}
	if resp.Exp != exp.Unix() {
		t.Errorf("exp = %d, want %d", resp.Exp, exp.Unix())
	}
	if resp.Scope != "openid webid" {
		t.Errorf("scope = %q", resp.Scope)
	}

	// the decision reached the audit trail, with a fingerprint instead
	// of the token itself
	entries, err := env.auditor.Find(func(e core.AuditEntry) bool { return e.Action == "token.introspect" }, 10)
	if err != nil {
		t.Fatalf("reading audit trail: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if !entries[0].Granted || entries[0].WebID != webid {
		t.Errorf("audit entry = %+v", entries[0])
	}
	fp, _ := entries[0].Metadata["fingerprint"].(string)
	if fp == "" || fp == token {
		t.Errorf("fingerprint = %q", fp)
	}
}

func TestIntrospectInactiveTokens(t *testing.T) {
	env := newTestEnv(t)

	foreign, err := keychain.Generate()
	if err != nil {
		t.Fatalf("generating foreign keychain: %v", err)
	}

	live := jwt.MapClaims{
		"iss":   testIssuer,
		"sub":   "alice",
		"webid": testIssuer + "/people/alice#me",
		"aud":   []string{testIssuer},
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	clone := func(mutate func(c jwt.MapClaims)) jwt.MapClaims {
		c := jwt.MapClaims{}
		for k, v := range live {
			c[k] = v
		}
		mutate(c)
		return c
	}

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "garbage",
			token: "not.a.token",
		},
		{
			name:  "foreign signature",
			token: signAccessToken(t, foreign, live),
		},
		{
			name: "expired",
			token: signAccessToken(t, env.authority.Keys, clone(func(c jwt.MapClaims) {
				c["exp"] = time.Now().Add(-time.Hour).Unix()
			})),
		},
		{
			name: "foreign audience",
			token: signAccessToken(t, env.authority.Keys, clone(func(c jwt.MapClaims) {
				c["aud"] = []string{"https://other.example.net"}
			})),
		},
		{
			name: "issuer cannot speak for the webid",
			token: signAccessToken(t, env.authority.Keys, clone(func(c jwt.MapClaims) {
				c["webid"] = "https://alice.elsewhere.example/profile/card#me"
			})),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := introspect(t, env, tt.token)
			if resp.Active {
				t.Error("token reported active")
			}
			if resp.WebID != "" {
				t.Errorf("webid leaked on inactive token: %q", resp.WebID)
			}
		})
	}
}

func TestIntrospectTrustsDelegatedProvider(t *testing.T) {
	env := newTestEnv(t)

	// webid hosted elsewhere, but its profile names this authority as
	// preferred provider
	webid := "https://alice.elsewhere.example/profile/card#me"
	env.disco.providers[webid] = testIssuer + "/"

	token := signAccessToken(t, env.authority.Keys, jwt.MapClaims{
		"iss":   testIssuer,
		"sub":   "alice",
		"webid": webid,
		"aud":   []string{testIssuer},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	resp := introspect(t, env, token)
	if !resp.Active {
		t.Fatal("token reported inactive")
	}
	if resp.WebID != webid {
		t.Errorf("webid = %q, want %q", resp.WebID, webid)
	}
}

func TestIntrospectMissingToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.postForm(t, IntrospectRoute, "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
