package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/solid/oidc-auth-manager/internal/audit"
	"github.com/solid/oidc-auth-manager/internal/cliconfig"
	"github.com/solid/oidc-auth-manager/internal/config"
	"github.com/solid/oidc-auth-manager/internal/core"
	"github.com/solid/oidc-auth-manager/internal/discovery"
	"github.com/solid/oidc-auth-manager/internal/host"
	"github.com/solid/oidc-auth-manager/internal/keychain"
	"github.com/solid/oidc-auth-manager/internal/rp"
	"github.com/solid/oidc-auth-manager/internal/session"
	"github.com/solid/oidc-auth-manager/internal/storage"
	"github.com/solid/oidc-auth-manager/internal/trust"
	"github.com/solid/oidc-auth-manager/internal/users"
	"github.com/solid/oidc-auth-manager/pkg/client"
)

type Factory struct {
	// RemoteAddr is the address of the server to run remote commands
	// against.
	RemoteAddr string

	// ConfigPath is the server configuration file for local commands.
	ConfigPath string
}

var f = NewFactory()

func NewFactory() *Factory {
	return &Factory{}
}

// GetClient returns an authenticated HTTP client for remote operations.
func (f *Factory) GetClient() (*client.Client, error) {
	server := f.RemoteAddr // prio 1: command-line flag
	if server == "" {
		server = viper.GetString(ServerAddrKey) // prio 2: config/env
	}
	if server == "" {
		return nil, fmt.Errorf("server address not configured (use --server or set OIDC_AUTH_ADDR)")
	}

	var token string
	if cfg, err := cliconfig.Load(); err == nil {
		if cred, err := cfg.GetCredential(server); err == nil { // token prio 1: saved credential
			token = cred.Token
		}
	}

	if envToken := os.Getenv("OIDC_AUTH_TOKEN"); envToken != "" { // token prio 2: env var
		token = envToken
	}

	return client.New(server, client.WithAuthToken(token)), nil
}

// LoadServerConfig reads the server configuration for local commands.
func (f *Factory) LoadServerConfig() (*config.Config, error) {
	if f.ConfigPath == "" {
		return nil, fmt.Errorf("config file not specified (use --config)")
	}
	return config.Load(f.ConfigPath)
}

func (f *Factory) bindConfigFlag(flags *pflag.FlagSet) {
	flags.StringVarP(&f.ConfigPath, "config", "c", "", "The server configuration file to use")
}

// Stack is the assembled provider: storage, keys, trust checks, and the
// collaborators the HTTP surface needs.
type Stack struct {
	Cfg       *config.Config
	Backend   storage.Backend
	Authority *keychain.AuthorityConfig
	Discovery *discovery.Client
	Verifier  *trust.Verifier
	Sessions  *session.Store
	Users     *users.Store
	Clients   *rp.Registry
	Auditor   core.Auditor
	Host      *core.HostAPI
}

// BuildStack loads the configuration and brings up every component,
// bootstrapping provider state in the store on the way.
func (f *Factory) BuildStack(ctx context.Context) (*Stack, error) {
	cfg, err := f.LoadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := storage.NewFileBackend(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store at %q: %w", cfg.DBPath, err)
	}

	clients := rp.NewRegistry(backend, cfg.Issuer, cfg.AuthCallbackURI)

	authority, err := keychain.NewBootstrapper(backend, cfg.Issuer, clients).Bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping provider state: %w", err)
	}

	for _, up := range cfg.Upstream {
		if err := clients.Seed(up.Issuer, up.ClientID, up.ClientSecret); err != nil {
			return nil, fmt.Errorf("seeding upstream client %q: %w", up.Issuer, err)
		}
	}

	disco := discovery.New(cfg.Discovery.Timeout)
	verifier := trust.New(cfg.Issuer, disco)

	sessions := session.NewStore(cfg.Session.TTL, strings.HasPrefix(cfg.Issuer, "https://"))
	userStore := users.NewStore(backend, cfg.SaltRounds)

	auditor, err := buildAuditor(cfg)
	if err != nil {
		sessions.Close()
		return nil, err
	}

	hostOpts, err := host.OptionsFromMap(cfg.Host)
	if err != nil {
		sessions.Close()
		return nil, fmt.Errorf("reading host options: %w", err)
	}
	hostAPI := host.New(hostOpts, host.Deps{
		Sessions: sessions,
		Consent:  host.AutoConsent{},
		Logout:   &host.SessionLogout{Sessions: sessions, PostLogoutURI: cfg.PostLogoutURI},
	})

	return &Stack{
		Cfg:       cfg,
		Backend:   backend,
		Authority: authority,
		Discovery: disco,
		Verifier:  verifier,
		Sessions:  sessions,
		Users:     userStore,
		Clients:   clients,
		Auditor:   auditor,
		Host:      hostAPI,
	}, nil
}

func (s *Stack) Close() {
	s.Sessions.Close()
	if err := s.Auditor.Close(); err != nil {
		log.Warn().Err(err).Msg("closing auditor")
	}
}

func buildAuditor(cfg *config.Config) (core.Auditor, error) {
	if !cfg.Audit.Enabled {
		return audit.NewNoopAuditor(), nil
	}
	switch cfg.Audit.Type {
	case "memory":
		return audit.NewInMemoryAuditor(), nil
	case "file":
		auditor, err := audit.NewFileAuditor(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("opening audit log %q: %w", cfg.Audit.Path, err)
		}
		return auditor, nil
	default:
		return nil, fmt.Errorf("unsupported audit type %q", cfg.Audit.Type)
	}
}
