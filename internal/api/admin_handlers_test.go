package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/solid/oidc-auth-manager/internal/core"
)

func withAdminToken(t *testing.T) func(r *http.Request) {
	token := adminToken(t)
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, route := range []string{ListClientsRoute, ListAuditsRoute} {
		w := env.get(t, route, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status = %d, want %d", route, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestAdminListClients(t *testing.T) {
	env := newTestEnv(t)

	if err := env.clients.EnsureLocal(context.Background()); err != nil {
		t.Fatalf("EnsureLocal: %v", err)
	}
	if err := env.clients.Seed("https://idp.example.org", "client-9", "s3cret"); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	w := env.get(t, ListClientsRoute, withAdminToken(t))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var clients []ClientSummary
	decodeJSON(t, w, &clients)
	if len(clients) != 2 {
		t.Fatalf("len(clients) = %d, want 2", len(clients))
	}

	issuers := []string{clients[0].Issuer, clients[1].Issuer}
	if issuers[0] != "https://idp.example.org" || issuers[1] != testIssuer {
		t.Errorf("issuers = %v", issuers)
	}
	for _, c := range clients {
		if c.ClientID == "" {
			t.Errorf("registration for %q has no client id", c.Issuer)
		}
	}
	if strings.Contains(w.Body.String(), "s3cret") {
		t.Error("client secret leaked through the admin api")
	}
}

func TestAdminAudit(t *testing.T) {
	env := newTestEnv(t)

	seed := []core.AuditEntry{
		{ID: "r1", Time: time.Now(), Action: "auth.login", Username: "alice", Granted: true},
		{ID: "r2", Time: time.Now(), Action: "token.introspect", WebID: "https://a.example/#me", Granted: true},
		{ID: "r3", Time: time.Now(), Action: "token.introspect", WebID: "https://b.example/#me"},
	}
	for _, e := range seed {
		if err := env.auditor.Log(e); err != nil {
			t.Fatalf("seeding audit log: %v", err)
		}
	}

	t.Run("recent", func(t *testing.T) {
		w := env.get(t, ListAuditsRoute, withAdminToken(t))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		var entries []core.AuditEntry
		decodeJSON(t, w, &entries)
		if len(entries) != 3 {
			t.Errorf("len(entries) = %d, want 3", len(entries))
		}
	})

	t.Run("filter by action", func(t *testing.T) {
		w := env.get(t, ListAuditsRoute+"?action=token.introspect", withAdminToken(t))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		var entries []core.AuditEntry
		decodeJSON(t, w, &entries)
		if len(entries) != 2 {
			t.Fatalf("len(entries) = %d, want 2", len(entries))
		}
		for _, e := range entries {
			if e.Action != "token.introspect" {
				t.Errorf("entry %q has action %q", e.ID, e.Action)
			}
		}
	})

	t.Run("filter by webid", func(t *testing.T) {
		w := env.get(t, ListAuditsRoute+"?webid=https%3A%2F%2Fb.example%2F%23me", withAdminToken(t))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		var entries []core.AuditEntry
		decodeJSON(t, w, &entries)
		if len(entries) != 1 || entries[0].ID != "r3" {
			t.Errorf("entries = %+v", entries)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		w := env.get(t, ListAuditsRoute+"?limit=abc", withAdminToken(t))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}
