// Package rp manages relying-party client registrations: the provider's
// own client behind the local login flow, plus clients for the remote
// providers users sign in through.
package rp

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/solid/oidc-auth-manager/internal/storage"
	"github.com/solid/oidc-auth-manager/pkg/origin"
)

// ErrNotRegistered means no client registration exists for a provider.
var ErrNotRegistered = errors.New("rp: no client registered for provider")

// Registration is a persisted client registration with one provider.
type Registration struct {
	Issuer       string    `json:"issuer"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret,omitempty"`
	RedirectURIs []string  `json:"redirect_uris"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Registry stores registrations in the rp storage namespace.
type Registry struct {
	backend     storage.Backend
	issuer      string
	callbackURI string
}

// NewRegistry creates a registry for the provider at issuer, with
// callbackURI as the redirect URI of every client it manages.
func NewRegistry(backend storage.Backend, issuer, callbackURI string) *Registry {
	return &Registry{
		backend:     backend,
		issuer:      issuer,
		callbackURI: callbackURI,
	}
}

// EnsureLocal registers the provider's own client when missing, so the
// local login flow works from the first request. Repeat calls keep the
// stored registration untouched.
func (r *Registry) EnsureLocal(ctx context.Context) error {
	_, err := r.Get(r.issuer)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotRegistered) {
		return err
	}

	secret, err := newClientSecret()
	if err != nil {
		return err
	}
	return r.put(&Registration{
		Issuer:       r.issuer,
		ClientID:     uuid.NewString(),
		ClientSecret: secret,
		RedirectURIs: []string{r.callbackURI},
		RegisteredAt: time.Now().UTC(),
	})
}

// Seed stores a statically configured registration for a remote
// provider, replacing any previous one for the same issuer.
func (r *Registry) Seed(issuer, clientID, clientSecret string) error {
	if issuer == "" || clientID == "" {
		return errors.New("rp: seed needs issuer and client id")
	}
	return r.put(&Registration{
		Issuer:       issuer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURIs: []string{r.callbackURI},
		RegisteredAt: time.Now().UTC(),
	})
}

// Get loads the registration for issuer.
func (r *Registry) Get(issuer string) (*Registration, error) {
	raw, err := r.backend.Get(clientKey(issuer))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, issuer)
	}
	if err != nil {
		return nil, fmt.Errorf("rp: loading registration for %q: %w", issuer, err)
	}

	var reg Registration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("rp: registration for %q is malformed: %w", issuer, err)
	}
	return &reg, nil
}

// Local returns the provider's own registration.
func (r *Registry) Local() (*Registration, error) {
	return r.Get(r.issuer)
}

// List returns all registrations ordered by issuer.
func (r *Registry) List() ([]Registration, error) {
	keys, err := r.backend.List(storage.NamespaceRP + "/")
	if err != nil {
		return nil, fmt.Errorf("rp: listing registrations: %w", err)
	}

	regs := make([]Registration, 0, len(keys))
	for _, key := range keys {
		raw, err := r.backend.Get(key)
		if err != nil {
			return nil, fmt.Errorf("rp: loading %q: %w", key, err)
		}
		var reg Registration
		if err := json.Unmarshal(raw, &reg); err != nil {
			return nil, fmt.Errorf("rp: registration %q is malformed: %w", key, err)
		}
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Issuer < regs[j].Issuer })
	return regs, nil
}

// RelyingParty binds a registration to live provider metadata for the
// authorization code dance.
type RelyingParty struct {
	Registration *Registration
	Provider     *oidc.Provider
	OAuth        oauth2.Config
}

// Connect resolves a provider's metadata and builds the oauth2 client
// for it. A provider without a stored registration is registered
// dynamically; ErrNotRegistered is returned only when the provider
// offers no registration endpoint either.
func (r *Registry) Connect(ctx context.Context, issuer string) (*RelyingParty, error) {
	reg, err := r.Get(issuer)
	if errors.Is(err, ErrNotRegistered) {
		return r.register(ctx, issuer)
	}
	if err != nil {
		return nil, err
	}

	provider, err := oidc.NewProvider(ctx, reg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("rp: resolving provider %q: %w", issuer, err)
	}
	return r.party(reg, provider), nil
}

// register creates a client with a remote provider through dynamic
// client registration and persists it.
func (r *Registry) register(ctx context.Context, issuer string) (*RelyingParty, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("rp: resolving provider %q: %w", issuer, err)
	}

	var meta struct {
		RegistrationEndpoint string `json:"registration_endpoint"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("rp: reading metadata of %q: %w", issuer, err)
	}
	if meta.RegistrationEndpoint == "" {
		return nil, fmt.Errorf("%w: %s offers no registration endpoint", ErrNotRegistered, issuer)
	}

	reg, err := r.registerAt(ctx, issuer, meta.RegistrationEndpoint)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().
		Str("issuer", issuer).
		Str("client_id", reg.ClientID).
		Msg("registered new client with provider")
	return r.party(reg, provider), nil
}

// registerAt sends the registration request and stores the client the
// provider hands back.
func (r *Registry) registerAt(ctx context.Context, issuer, endpoint string) (*Registration, error) {
	payload, err := json.Marshal(map[string]any{
		"client_name":    "oidc-auth-manager",
		"client_uri":     r.issuer,
		"redirect_uris":  []string{r.callbackURI},
		"grant_types":    []string{"authorization_code"},
		"response_types": []string{"code"},
		"scope":          "openid profile webid",
	})
	if err != nil {
		return nil, fmt.Errorf("rp: encoding registration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("rp: building registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rp: registering with %q: %w", issuer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rp: %q rejected the registration with status %d: %s",
			issuer, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("rp: reading registration response from %q: %w", issuer, err)
	}
	if out.ClientID == "" {
		return nil, fmt.Errorf("rp: %q returned a registration without a client id", issuer)
	}

	reg := &Registration{
		Issuer:       issuer,
		ClientID:     out.ClientID,
		ClientSecret: out.ClientSecret,
		RedirectURIs: []string{r.callbackURI},
		RegisteredAt: time.Now().UTC(),
	}
	if err := r.put(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) party(reg *Registration, provider *oidc.Provider) *RelyingParty {
	return &RelyingParty{
		Registration: reg,
		Provider:     provider,
		OAuth: oauth2.Config{
			ClientID:     reg.ClientID,
			ClientSecret: reg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  r.callbackURI,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "webid"},
		},
	}
}

// Verifier checks id tokens minted for this relying party.
func (p *RelyingParty) Verifier() *oidc.IDTokenVerifier {
	return p.Provider.Verifier(&oidc.Config{ClientID: p.Registration.ClientID})
}

// clientKey maps an issuer to its storage key. Issuer URIs contain
// slashes, so the key is a digest rather than the URI itself.
func clientKey(issuer string) string {
	sum := sha256.Sum256([]byte(origin.TrimSlash(issuer)))
	return storage.NamespaceRP + "/" + hex.EncodeToString(sum[:8]) + ".json"
}

func (r *Registry) put(reg *Registration) error {
	raw, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("rp: encoding registration for %q: %w", reg.Issuer, err)
	}
	if err := r.backend.Put(clientKey(reg.Issuer), raw); err != nil {
		return fmt.Errorf("rp: storing registration for %q: %w", reg.Issuer, err)
	}
	return nil
}

func newClientSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("rp: generating client secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
