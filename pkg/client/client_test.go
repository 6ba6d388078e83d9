package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solid/oidc-auth-manager/internal/api"
	"github.com/solid/oidc-auth-manager/internal/api/presenter"
	"github.com/solid/oidc-auth-manager/internal/buildinfo"
	"github.com/solid/oidc-auth-manager/internal/core"
)

func newStubServer(t *testing.T) (*httptest.Server, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mux
}

func TestHealthAndInfo(t *testing.T) {
	srv, mux := newStubServer(t)
	mux.HandleFunc("GET "+api.HealthCheckRoute, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET "+api.AboutRoute, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(buildinfo.GetBuildInfo())
	})

	c := New(srv.URL)
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health() = %v", err)
	}

	info, _, err := c.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() = %v", err)
	}
	if info.Service != "oidc-auth-manager" {
		t.Errorf("service = %q", info.Service)
	}
}

func TestHealthFailure(t *testing.T) {
	srv, _ := newStubServer(t)

	c := New(srv.URL)
	if err := c.Health(context.Background()); err == nil {
		t.Error("Health() = nil on a server without a health route")
	}
}

func TestListAuditsSendsTokenAndFilters(t *testing.T) {
	srv, mux := newStubServer(t)

	var gotAuth, gotQuery string
	mux.HandleFunc("GET "+api.ListAuditsRoute, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]core.AuditEntry{{ID: "r1", Action: "auth.login"}})
	})

	c := New(srv.URL, WithAuthToken("tok-1"))
	entries, _, err := c.ListAudits(context.Background(), ListAuditsOpts{
		Limit:  10,
		Action: "auth.login",
	})
	if err != nil {
		t.Fatalf("ListAudits() = %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "r1" {
		t.Errorf("entries = %+v", entries)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotQuery != "action=auth.login&limit=10" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestIntrospectPostsForm(t *testing.T) {
	srv, mux := newStubServer(t)
	mux.HandleFunc("POST "+api.IntrospectRoute, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		active := r.PostForm.Get("token") == "good"
		_ = json.NewEncoder(w).Encode(api.IntrospectionResponse{
			Active: active,
			WebID:  "https://alice.example.com/profile/card#me",
		})
	})

	c := New(srv.URL)
	resp, _, err := c.Introspect(context.Background(), "good")
	if err != nil {
		t.Fatalf("Introspect() = %v", err)
	}
	if !resp.Active || resp.WebID == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestErrorResponsesBecomeAPIErrors(t *testing.T) {
	srv, mux := newStubServer(t)
	mux.HandleFunc("GET "+api.ListClientsRoute, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Correlation-ID", "corr-7")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(presenter.ErrorResponse{
			Error:         "insufficient privileges",
			CorrelationID: "corr-7",
		})
	})

	c := New(srv.URL)
	_, correlation, err := c.ListClients(context.Background())

	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Message != "insufficient privileges" || apiErr.CorrelationID != "corr-7" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if correlation != "corr-7" {
		t.Errorf("correlation = %q", correlation)
	}
}

func TestInvalidSessionSentinel(t *testing.T) {
	srv, mux := newStubServer(t)
	mux.HandleFunc("GET "+api.ListClientsRoute, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(presenter.ErrorResponse{Error: "invalid session token"})
	})

	c := New(srv.URL, WithAuthToken("expired"))
	_, _, err := c.ListClients(context.Background())
	if !errors.Is(err, ErrInvalidSession) {
		t.Errorf("err = %v, want ErrInvalidSession", err)
	}
}
