package keychain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/solid/oidc-auth-manager/internal/storage"
	"github.com/solid/oidc-auth-manager/pkg/origin"
)

// ConfigKey is where the authority configuration lives in storage.
const ConfigKey = storage.NamespaceOP + "/provider.json"

// AuthorityConfig is the provider's persisted identity: the issuer URI
// it serves and the keychain it signs with.
type AuthorityConfig struct {
	Issuer string    `json:"issuer"`
	Keys   *Keychain `json:"keys,omitempty"`
}

// RPWarmer pre-registers the provider's own relying-party client so the
// local sign-in flow works from the first request.
type RPWarmer interface {
	EnsureLocal(ctx context.Context) error
}

// Bootstrapper brings storage and the authority configuration to a
// usable state. Running it is idempotent: repeated starts against the
// same store keep the same keys.
type Bootstrapper struct {
	store  storage.Backend
	issuer string
	warmer RPWarmer
}

// NewBootstrapper wires a bootstrapper for the given issuer. warmer may
// be nil when no local relying party should be registered.
func NewBootstrapper(store storage.Backend, issuer string, warmer RPWarmer) *Bootstrapper {
	return &Bootstrapper{
		store:  store,
		issuer: issuer,
		warmer: warmer,
	}
}

// Bootstrap ensures all storage namespaces exist, loads or creates the
// authority configuration, guarantees a signing keychain, and persists
// the result before returning it. A malformed stored configuration is
// fatal. A failed relying-party warm-up is logged and ignored.
func (b *Bootstrapper) Bootstrap(ctx context.Context) (*AuthorityConfig, error) {
	logger := log.Ctx(ctx)

	for _, ns := range storage.Namespaces() {
		if err := b.store.EnsureNamespace(ns); err != nil {
			return nil, fmt.Errorf("ensuring namespace %q: %w", ns, err)
		}
	}

	cfg, err := b.loadOrCreate()
	if err != nil {
		return nil, err
	}

	if cfg.Issuer != "" && origin.TrimSlash(cfg.Issuer) != origin.TrimSlash(b.issuer) {
		logger.Warn().
			Str("stored", cfg.Issuer).
			Str("configured", b.issuer).
			Msg("stored issuer differs from configuration, configured value wins")
	}
	cfg.Issuer = b.issuer

	if cfg.Keys == nil {
		logger.Info().Msg("no signing keychain found, generating one")
		keys, err := Generate()
		if err != nil {
			return nil, fmt.Errorf("generating keychain: %w", err)
		}
		cfg.Keys = keys
	} else {
		logger.Debug().
			Str("id_token_kid", cfg.Keys.IDTokenKey.KeyID).
			Msg("reusing persisted keychain")
	}

	// always persist, so a hand-edited or freshly created configuration
	// ends up in canonical form
	if err := b.persist(cfg); err != nil {
		return nil, err
	}

	if b.warmer != nil {
		if err := b.warmer.EnsureLocal(ctx); err != nil {
			logger.Warn().Err(err).Msg("local relying party warm-up failed")
		}
	}

	return cfg, nil
}

func (b *Bootstrapper) loadOrCreate() (*AuthorityConfig, error) {
	raw, err := b.store.Get(ConfigKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &AuthorityConfig{Issuer: b.issuer}, nil
	case err != nil:
		return nil, fmt.Errorf("loading authority configuration: %w", err)
	}

	var cfg AuthorityConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("authority configuration %s is malformed: %w", ConfigKey, err)
	}
	if cfg.Keys != nil {
		if err := cfg.Keys.Validate(); err != nil {
			return nil, fmt.Errorf("authority configuration %s: %w", ConfigKey, err)
		}
	}
	return &cfg, nil
}

func (b *Bootstrapper) persist(cfg *AuthorityConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding authority configuration: %w", err)
	}
	if err := b.store.Put(ConfigKey, raw); err != nil {
		return fmt.Errorf("persisting authority configuration: %w", err)
	}
	return nil
}
