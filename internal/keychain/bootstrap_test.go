package keychain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/solid/oidc-auth-manager/internal/storage"
)

const testIssuer = "https://idp.example.com"

type countingWarmer struct {
	calls int
	err   error
}

func (w *countingWarmer) EnsureLocal(ctx context.Context) error {
	w.calls++
	return w.err
}

type brokenBackend struct {
	*storage.MemoryBackend
}

func (b *brokenBackend) Get(key string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func TestBootstrapFreshStore(t *testing.T) {
	store := storage.NewMemoryBackend()
	warmer := &countingWarmer{}

	cfg, err := NewBootstrapper(store, testIssuer, warmer).Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if cfg.Issuer != testIssuer {
		t.Errorf("Issuer = %q, want %q", cfg.Issuer, testIssuer)
	}
	if cfg.Keys == nil {
		t.Fatal("fresh bootstrap must generate a keychain")
	}
	if err := cfg.Keys.Validate(); err != nil {
		t.Errorf("generated keychain invalid: %v", err)
	}
	if warmer.calls != 1 {
		t.Errorf("warmer called %d times, want 1", warmer.calls)
	}

	for _, ns := range storage.Namespaces() {
		if !store.HasNamespace(ns) {
			t.Errorf("namespace %q was not ensured", ns)
		}
	}

	raw, err := store.Get(ConfigKey)
	if err != nil {
		t.Fatalf("configuration was not persisted: %v", err)
	}
	var persisted AuthorityConfig
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("persisted configuration does not decode: %v", err)
	}
	if persisted.Issuer != testIssuer || persisted.Keys == nil {
		t.Errorf("persisted configuration incomplete: %+v", persisted)
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	store := storage.NewMemoryBackend()
	b := NewBootstrapper(store, testIssuer, nil)

	first, err := b.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("first Bootstrap: %v", err)
	}
	second, err := b.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}

	if first.Keys.IDTokenKey.KeyID != second.Keys.IDTokenKey.KeyID {
		t.Errorf("id token key regenerated across restarts: %q != %q",
			first.Keys.IDTokenKey.KeyID, second.Keys.IDTokenKey.KeyID)
	}
	if first.Keys.AccessTokenKey.KeyID != second.Keys.AccessTokenKey.KeyID {
		t.Errorf("access token key regenerated across restarts: %q != %q",
			first.Keys.AccessTokenKey.KeyID, second.Keys.AccessTokenKey.KeyID)
	}
}

func TestBootstrapConfiguredIssuerWins(t *testing.T) {
	store := storage.NewMemoryBackend()
	stored := AuthorityConfig{Issuer: "https://old.example.com"}
	raw, _ := json.Marshal(stored)
	if err := store.Put(ConfigKey, raw); err != nil {
		t.Fatalf("Put: %v", err)
	}

	cfg, err := NewBootstrapper(store, testIssuer, nil).Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if cfg.Issuer != testIssuer {
		t.Errorf("Issuer = %q, want configured %q", cfg.Issuer, testIssuer)
	}
}

func TestBootstrapMalformedConfigIsFatal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"broken json", `{"issuer": `},
		{"wrong types", `{"issuer": 42}`},
		{"keys without material", `{"issuer": "https://idp.example.com", "keys": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryBackend()
			if err := store.Put(ConfigKey, []byte(tt.raw)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if _, err := NewBootstrapper(store, testIssuer, nil).Bootstrap(context.Background()); err == nil {
				t.Error("Bootstrap should fail on a malformed stored configuration")
			}
		})
	}
}

func TestBootstrapStorageErrorIsFatal(t *testing.T) {
	store := &brokenBackend{storage.NewMemoryBackend()}
	if _, err := NewBootstrapper(store, testIssuer, nil).Bootstrap(context.Background()); err == nil {
		t.Error("Bootstrap should surface backend read errors")
	}
}

func TestBootstrapWarmupFailureIsNotFatal(t *testing.T) {
	store := storage.NewMemoryBackend()
	warmer := &countingWarmer{err: errors.New("registration endpoint down")}

	cfg, err := NewBootstrapper(store, testIssuer, warmer).Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap should tolerate warm-up failure, got %v", err)
	}
	if cfg == nil || cfg.Keys == nil {
		t.Error("configuration should still be complete after a failed warm-up")
	}
	if warmer.calls != 1 {
		t.Errorf("warmer called %d times, want 1", warmer.calls)
	}
}
