package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/solid/oidc-auth-manager/pkg/origin"
)

// Defaults for optional settings.
const (
	DefaultListenAddr       = ":8080"
	DefaultDBPath           = "./db/oidc"
	DefaultDiscoveryTimeout = 10 * time.Second
	DefaultSessionTTL       = 24 * time.Hour
	DefaultLoginRate        = 5.0
	DefaultLoginBurst       = 10
)

// ValidationError names the configuration option that failed validation.
type ValidationError struct {
	Option string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: option %s %s", e.Option, e.Reason)
}

type Config struct {
	// Issuer is the URI this provider serves as. Required.
	Issuer string `yaml:"issuer"`

	// AuthCallbackURI receives redirects from remote providers after
	// sign-in. Required.
	AuthCallbackURI string `yaml:"auth_callback_uri"`

	// PostLogoutURI is where users land after logout. Required.
	PostLogoutURI string `yaml:"post_logout_uri"`

	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	// SaltRounds is the bcrypt cost for account passwords. Zero means
	// the bcrypt default.
	SaltRounds int `yaml:"salt_rounds"`

	// Host holds free-form host behavior overrides, decoded by the
	// host package.
	Host map[string]any `yaml:"host"`

	Admin     AdminConfig      `yaml:"admin"`
	Audit     AuditConfig      `yaml:"audit"`
	Discovery DiscoveryConfig  `yaml:"discovery"`
	Session   SessionConfig    `yaml:"session"`
	Login     LoginConfig      `yaml:"login"`
	Upstream  []UpstreamClient `yaml:"upstream"`
}

// AdminConfig guards the admin API.
type AdminConfig struct {
	// Secret verifies admin session tokens. Admin routes stay disabled
	// while it is empty.
	Secret string `yaml:"secret"`
}

// AuditConfig holds configuration for auditing.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Type    string `yaml:"type"` // e.g., "file", "memory"
}

// DiscoveryConfig tunes preferred provider discovery.
type DiscoveryConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig tunes browser sessions.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// LoginConfig tunes the password login endpoint.
type LoginConfig struct {
	// RateLimit is the allowed login attempts per second per client.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// UpstreamClient is a statically registered client with a remote
// provider, for deployments whose users sign in elsewhere.
type UpstreamClient struct {
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Load reads and parses the configuration file at the given path.
// It returns a Config struct or an error if loading/parsing/validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset optional settings.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.Discovery.Timeout <= 0 {
		c.Discovery.Timeout = DefaultDiscoveryTimeout
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = DefaultSessionTTL
	}
	if c.Login.RateLimit <= 0 {
		c.Login.RateLimit = DefaultLoginRate
	}
	if c.Login.RateBurst <= 0 {
		c.Login.RateBurst = DefaultLoginBurst
	}
	if c.Audit.Enabled && c.Audit.Type == "" {
		c.Audit.Type = "file"
	}
}

func (c *Config) Validate() error {
	for _, opt := range []struct {
		name  string
		value string
	}{
		{"issuer", c.Issuer},
		{"auth_callback_uri", c.AuthCallbackURI},
		{"post_logout_uri", c.PostLogoutURI},
	} {
		if opt.value == "" {
			return &ValidationError{Option: opt.name, Reason: "is required"}
		}
		if _, err := origin.Origin(opt.value); err != nil {
			return &ValidationError{
				Option: opt.name,
				Reason: fmt.Sprintf("must be an absolute http(s) uri, got %q", opt.value),
			}
		}
	}

	if c.SaltRounds < 0 {
		return &ValidationError{Option: "salt_rounds", Reason: "must not be negative"}
	}

	if c.Audit.Enabled {
		switch c.Audit.Type {
		case "file":
			if c.Audit.Path == "" {
				return &ValidationError{Option: "audit.path", Reason: "is required for the file auditor"}
			}
		case "memory":
		default:
			return &ValidationError{
				Option: "audit.type",
				Reason: fmt.Sprintf("unsupported auditor %q", c.Audit.Type),
			}
		}
	}

	for idx, up := range c.Upstream {
		if up.Issuer == "" {
			return &ValidationError{
				Option: fmt.Sprintf("upstream[%d].issuer", idx),
				Reason: "is required",
			}
		}
		if _, err := origin.Origin(up.Issuer); err != nil {
			return &ValidationError{
				Option: fmt.Sprintf("upstream[%d].issuer", idx),
				Reason: fmt.Sprintf("must be an absolute http(s) uri, got %q", up.Issuer),
			}
		}
		if up.ClientID == "" {
			return &ValidationError{
				Option: fmt.Sprintf("upstream[%d].client_id", idx),
				Reason: "is required",
			}
		}
	}

	return nil
}
