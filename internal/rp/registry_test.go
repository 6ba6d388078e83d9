package rp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solid/oidc-auth-manager/internal/storage"
)

const (
	testIssuer   = "https://idp.example.com"
	testCallback = "https://idp.example.com/auth/callback"
)

func newTestRegistry() *Registry {
	return NewRegistry(storage.NewMemoryBackend(), testIssuer, testCallback)
}

func TestEnsureLocalIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	if err := r.EnsureLocal(ctx); err != nil {
		t.Fatalf("EnsureLocal: %v", err)
	}
	first, err := r.Local()
	if err != nil {
		t.Fatalf("Local: %v", err)
	}
	if first.ClientID == "" || first.ClientSecret == "" {
		t.Errorf("local registration incomplete: %+v", first)
	}
	if len(first.RedirectURIs) != 1 || first.RedirectURIs[0] != testCallback {
		t.Errorf("redirect uris = %v, want [%s]", first.RedirectURIs, testCallback)
	}

	if err := r.EnsureLocal(ctx); err != nil {
		t.Fatalf("second EnsureLocal: %v", err)
	}
	second, err := r.Local()
	if err != nil {
		t.Fatalf("Local: %v", err)
	}
	if second.ClientID != first.ClientID {
		t.Errorf("EnsureLocal replaced the client id: %q != %q", second.ClientID, first.ClientID)
	}
}

func TestGetUnknownProvider(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.Get("https://nowhere.example.net"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Get = %v, want ErrNotRegistered", err)
	}
}

func TestSeedAndList(t *testing.T) {
	r := newTestRegistry()

	if err := r.Seed("https://remote-idp.example.org", "client-123", "hush"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := r.EnsureLocal(context.Background()); err != nil {
		t.Fatalf("EnsureLocal: %v", err)
	}

	reg, err := r.Get("https://remote-idp.example.org")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reg.ClientID != "client-123" || reg.ClientSecret != "hush" {
		t.Errorf("seeded registration = %+v", reg)
	}

	// trailing slash resolves to the same registration
	if _, err := r.Get("https://remote-idp.example.org/"); err != nil {
		t.Errorf("Get with trailing slash: %v", err)
	}

	regs, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("List returned %d registrations, want 2", len(regs))
	}
	if regs[0].Issuer > regs[1].Issuer {
		t.Error("List should order by issuer")
	}

	if err := r.Seed("", "x", ""); err == nil {
		t.Error("Seed without issuer should fail")
	}
}

func TestConnect(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/jwks",
		})
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	r := newTestRegistry()

	// no stored registration and no registration endpoint: nothing to
	// connect with
	if _, err := r.Connect(context.Background(), srv.URL); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Connect unregistered = %v, want ErrNotRegistered", err)
	}

	if err := r.Seed(srv.URL, "client-123", "hush"); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	party, err := r.Connect(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if party.OAuth.Endpoint.AuthURL != srv.URL+"/authorize" {
		t.Errorf("auth endpoint = %q", party.OAuth.Endpoint.AuthURL)
	}
	if party.OAuth.RedirectURL != testCallback {
		t.Errorf("redirect url = %q, want %q", party.OAuth.RedirectURL, testCallback)
	}
	if party.Verifier() == nil {
		t.Error("Verifier should be constructible")
	}
}

func TestConnectRegistersDynamically(t *testing.T) {
	var (
		srv           *httptest.Server
		registrations int
		gotBody       map[string]any
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/jwks",
			"registration_endpoint":  srv.URL + "/register",
		})
	})
	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		registrations++
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding registration request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"client_id":     "dyn-client-1",
			"client_secret": "dyn-secret",
		})
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	r := newTestRegistry()

	party, err := r.Connect(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if party.Registration.ClientID != "dyn-client-1" || party.OAuth.ClientSecret != "dyn-secret" {
		t.Errorf("registration = %+v", party.Registration)
	}
	if uris, ok := gotBody["redirect_uris"].([]any); !ok || len(uris) != 1 || uris[0] != testCallback {
		t.Errorf("registration request redirect_uris = %v, want [%s]", gotBody["redirect_uris"], testCallback)
	}

	// the client persisted: connecting again must not register twice
	if _, err := r.Connect(context.Background(), srv.URL); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if registrations != 1 {
		t.Errorf("registration endpoint called %d times, want 1", registrations)
	}
}
