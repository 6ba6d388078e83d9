package api

const (
	HealthCheckRoute = "/healthz"
	AboutRoute       = "/icanhazwebid"
	MetricsRoute     = "/metrics"

	OpenIDConfigurationRoute = "/.well-known/openid-configuration"
	JWKSRoute                = "/jwks"
	IntrospectRoute          = "/introspect"

	AuthorizeRoute     = "/authorize"
	LoginRoute         = "/login"
	PasswordLoginRoute = "/password/login"
	ProviderLoginRoute = "/provider/login"
	LogoutRoute        = "/logout"

	// DefaultCallbackRoute is used when the configured callback URI
	// carries no usable path.
	DefaultCallbackRoute = "/auth/callback"

	AdminParent      = "/v1/admin/"
	ListClientsRoute = AdminParent + "clients"
	ListAuditsRoute  = AdminParent + "audits"
)
