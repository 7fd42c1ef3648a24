// Package server implements the backend-for-frontend that drives the
// login, consent, and logout challenge flows against an external OAuth2
// authorization server and identity provider.
package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves values unset.
const (
	DefaultRememberFor     = 3600 // seconds
	DefaultUpstreamTimeout = 10 * time.Second
)

// Config captures the full application configuration loaded from YAML and
// environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Authz    AuthzConfig    `yaml:"authz_server"`
	Identity IdentityConfig `yaml:"identity"`
	OAuth2   OAuth2Config   `yaml:"oauth2"`
	Admin    AdminConfig    `yaml:"admin"`
}

// ServerConfig controls listener, TLS, and HTTP concerns.
type ServerConfig struct {
	PublicURL       string    `yaml:"public_url"`
	DevListenAddr   string    `yaml:"dev_listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	CORSOrigins     []string  `yaml:"cors_origins"`
	LoggedOutURL    string    `yaml:"logged_out_url"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour.
type TLSConfig struct {
	Domains   []string `yaml:"domains"`
	Email     string   `yaml:"email"`
	CachePath string   `yaml:"cache_path"`
}

// AuthzConfig points at the external OAuth2 authorization server: its admin
// API for challenge handling and its public endpoints for token exchange.
type AuthzConfig struct {
	AdminURL    string `yaml:"admin_url"`
	PublicURL   string `yaml:"public_url"`
	TokenURL    string `yaml:"token_url"`
	JWKSURL     string `yaml:"jwks_url"`
	RememberFor int64  `yaml:"remember_for"`
	Timeout     string `yaml:"timeout"`
}

// IdentityConfig points at the external identity provider's admin API.
type IdentityConfig struct {
	AdminURL string `yaml:"admin_url"`
	Timeout  string `yaml:"timeout"`
}

// OAuth2Config describes the client this BFF acts as when exchanging codes
// on behalf of its web frontends.
type OAuth2Config struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	Scope        string `yaml:"scope"`
}

// AdminConfig controls the guarded identity-admin passthrough.
type AdminConfig struct {
	Enabled       bool     `yaml:"enabled"`
	RequiredScope string   `yaml:"required_scope"`
	Audiences     []string `yaml:"audiences"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// DefaultConfig returns the configuration template.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			PublicURL:       "http://127.0.0.1:4000",
			DevListenAddr:   "127.0.0.1:4000",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			LoggedOutURL:    "/",
		},
		Authz: AuthzConfig{
			RememberFor: DefaultRememberFor,
		},
		OAuth2: OAuth2Config{
			Scope: "openid email profile offline_access",
		},
		Admin: AdminConfig{
			RequiredScope: "admin",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"AUTHBFF_SERVER_PUBLIC_URL":      func(v string) { cfg.Server.PublicURL = v },
		"AUTHBFF_SERVER_DEV_LISTEN_ADDR": func(v string) { cfg.Server.DevListenAddr = v },
		"AUTHBFF_SERVER_DEV_MODE":        func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"AUTHBFF_SERVER_CORS_ORIGINS":    func(v string) { cfg.Server.CORSOrigins = splitAndTrim(v) },
		"AUTHBFF_SERVER_LOGGED_OUT_URL":  func(v string) { cfg.Server.LoggedOutURL = v },
		"AUTHBFF_AUTHZ_ADMIN_URL":        func(v string) { cfg.Authz.AdminURL = v },
		"AUTHBFF_AUTHZ_PUBLIC_URL":       func(v string) { cfg.Authz.PublicURL = v },
		"AUTHBFF_AUTHZ_TOKEN_URL":        func(v string) { cfg.Authz.TokenURL = v },
		"AUTHBFF_AUTHZ_JWKS_URL":         func(v string) { cfg.Authz.JWKSURL = v },
		"AUTHBFF_IDENTITY_ADMIN_URL":     func(v string) { cfg.Identity.AdminURL = v },
		"AUTHBFF_OAUTH2_CLIENT_ID":       func(v string) { cfg.OAuth2.ClientID = v },
		"AUTHBFF_OAUTH2_CLIENT_SECRET":   func(v string) { cfg.OAuth2.ClientSecret = v },
		"AUTHBFF_OAUTH2_REDIRECT_URL":    func(v string) { cfg.OAuth2.RedirectURL = v },
		"AUTHBFF_OAUTH2_SCOPE":           func(v string) { cfg.OAuth2.Scope = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

// Validate performs sanity checks and fills derivable defaults.
func (c *Config) Validate() error {
	if c.Server.PublicURL == "" {
		return errors.New("server.public_url is required")
	}
	if !isHTTPURL(c.Server.PublicURL) {
		return fmt.Errorf("server.public_url must start with http:// or https://, got: %s", c.Server.PublicURL)
	}

	if c.Authz.AdminURL == "" {
		return errors.New("authz_server.admin_url is required")
	}
	if !isHTTPURL(c.Authz.AdminURL) {
		return fmt.Errorf("authz_server.admin_url must start with http:// or https://, got: %s", c.Authz.AdminURL)
	}

	if c.Identity.AdminURL == "" {
		return errors.New("identity.admin_url is required")
	}
	if !isHTTPURL(c.Identity.AdminURL) {
		return fmt.Errorf("identity.admin_url must start with http:// or https://, got: %s", c.Identity.AdminURL)
	}

	if c.OAuth2.ClientID == "" {
		return errors.New("oauth2.client_id is required")
	}
	if c.OAuth2.RedirectURL == "" {
		return errors.New("oauth2.redirect_url is required")
	}
	if !isHTTPURL(c.OAuth2.RedirectURL) {
		return fmt.Errorf("oauth2.redirect_url must start with http:// or https://, got: %s", c.OAuth2.RedirectURL)
	}

	// Token and JWKS endpoints derive from the public issuer URL when unset.
	if c.Authz.TokenURL == "" {
		if c.Authz.PublicURL == "" {
			return errors.New("authz_server.token_url or authz_server.public_url is required")
		}
		c.Authz.TokenURL = strings.TrimSuffix(c.Authz.PublicURL, "/") + "/oauth2/token"
	}
	if c.Authz.JWKSURL == "" && c.Authz.PublicURL != "" {
		c.Authz.JWKSURL = strings.TrimSuffix(c.Authz.PublicURL, "/") + "/.well-known/jwks.json"
	}
	if c.Admin.Enabled && c.Authz.JWKSURL == "" {
		return errors.New("authz_server.jwks_url is required when admin passthrough is enabled")
	}

	if c.Authz.RememberFor <= 0 {
		c.Authz.RememberFor = DefaultRememberFor
	}
	if c.Server.LoggedOutURL == "" {
		c.Server.LoggedOutURL = "/"
	}

	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		return errors.New("server.tls.domains must be provided in production")
	}

	if _, err := c.Authz.timeout(); err != nil {
		return fmt.Errorf("authz_server.timeout: %w", err)
	}
	if _, err := c.Identity.timeout(); err != nil {
		return fmt.Errorf("identity.timeout: %w", err)
	}

	return nil
}

func (c AuthzConfig) timeout() (time.Duration, error) {
	return parseTimeout(c.Timeout)
}

func (c IdentityConfig) timeout() (time.Duration, error) {
	return parseTimeout(c.Timeout)
}

func parseTimeout(val string) (time.Duration, error) {
	if val == "" {
		return DefaultUpstreamTimeout, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", val, err)
	}
	return d, nil
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
