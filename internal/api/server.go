package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/solid/oidc-auth-manager/internal/api/middleware"
	"github.com/solid/oidc-auth-manager/internal/api/presenter"
	"github.com/solid/oidc-auth-manager/internal/audit"
	"github.com/solid/oidc-auth-manager/internal/config"
	"github.com/solid/oidc-auth-manager/internal/core"
	"github.com/solid/oidc-auth-manager/internal/keychain"
	"github.com/solid/oidc-auth-manager/internal/metrics"
	"github.com/solid/oidc-auth-manager/internal/rp"
	"github.com/solid/oidc-auth-manager/internal/session"
	"github.com/solid/oidc-auth-manager/internal/trust"
	"github.com/solid/oidc-auth-manager/internal/users"
)

// IssuanceEngine completes an authorization request once the host
// capabilities have resolved the subject. Token minting lives outside
// this service; deployments mount their engine here. Returned errors
// are rendered through presenter.Err, so an engine controls its status
// codes with presenter.WithStatus.
type IssuanceEngine interface {
	Authorize(ctx context.Context, req *core.AuthRequest) error
}

type noIssuance struct{}

func (noIssuance) Authorize(_ context.Context, req *core.AuthRequest) error {
	presenter.Error(req.Response, req.Request,
		"no issuance engine is mounted on this host", http.StatusNotImplemented)
	return nil
}

type Server struct {
	cfg        *config.Config
	authority  *keychain.AuthorityConfig
	verifier   *trust.Verifier
	discovery  core.Discoverer
	host       *core.HostAPI
	sessions   *session.Store
	users      *users.Store
	clients    *rp.Registry
	issuance   IssuanceEngine
	auditor    core.Auditor
	querier    core.AuditQuerier
	loginLimit *middleware.RateLimiter

	callbackPath string
}

func NewServer(
	cfg *config.Config,
	authority *keychain.AuthorityConfig,
	verifier *trust.Verifier,
	discovery core.Discoverer,
	hostAPI *core.HostAPI,
	sessions *session.Store,
	userStore *users.Store,
	clients *rp.Registry,
	issuance IssuanceEngine,
	auditor core.Auditor,
) *Server {
	if auditor == nil {
		auditor = audit.NewNoopAuditor()
	}
	querier, ok := auditor.(core.AuditQuerier)
	if !ok {
		querier = audit.NewNoopAuditor()
	}
	if issuance == nil {
		issuance = noIssuance{}
	}

	return &Server{
		cfg:          cfg,
		authority:    authority,
		verifier:     verifier,
		discovery:    discovery,
		host:         hostAPI,
		sessions:     sessions,
		users:        userStore,
		clients:      clients,
		issuance:     issuance,
		auditor:      auditor,
		querier:      querier,
		loginLimit:   middleware.NewRateLimiter(cfg.Login.RateLimit, cfg.Login.RateBurst),
		callbackPath: callbackPath(cfg.AuthCallbackURI),
	}
}

// callbackPath extracts the local route from the configured callback URI.
func callbackPath(callbackURI string) string {
	u, err := url.Parse(callbackURI)
	if err != nil || u.Path == "" || u.Path == "/" {
		return DefaultCallbackRoute
	}
	return u.Path
}

func (s *Server) Routes(adminSigningKey []byte) http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)
	mux.Handle("GET "+MetricsRoute, metrics.Handler())

	// provider metadata and token routes
	mux.HandleFunc("GET "+OpenIDConfigurationRoute, s.handleOpenIDConfiguration)
	mux.HandleFunc("GET "+JWKSRoute, s.handleJWKS)
	mux.HandleFunc("POST "+IntrospectRoute, s.handleIntrospect)

	// interactive auth routes
	mux.HandleFunc("GET "+AuthorizeRoute, s.handleAuthorize)
	mux.HandleFunc("GET "+LoginRoute, s.handleLoginPage)
	mux.Handle("POST "+PasswordLoginRoute, s.loginLimit.Middleware(http.HandlerFunc(s.handlePasswordLogin)))
	mux.Handle("POST "+ProviderLoginRoute, s.loginLimit.Middleware(http.HandlerFunc(s.handleProviderLogin)))
	mux.HandleFunc("GET "+s.callbackPath, s.handleAuthCallback)
	mux.HandleFunc("GET "+LogoutRoute, s.handleLogout)

	// admin routes
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET "+ListClientsRoute, s.handleAdminClients)
	adminMux.HandleFunc("GET "+ListAuditsRoute, s.handleAdminAudit)
	mux.Handle(AdminParent, middleware.AdminAuth(adminSigningKey)(adminMux))

	return middleware.RecoverMiddleware(
		middleware.CorrelationIDMiddleware(
			middleware.LoggingMiddleware(
				middleware.MetricsMiddleware(
					mux))))
}
