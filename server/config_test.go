package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfigYAML = `
server:
  public_url: http://127.0.0.1:4000
  dev_mode: true
  logged_out_url: https://app.example.com/goodbye
authz_server:
  admin_url: http://127.0.0.1:4445
  public_url: http://127.0.0.1:4444
identity:
  admin_url: http://127.0.0.1:4434
oauth2:
  client_id: web-client
  redirect_url: https://app.example.com/callback
`

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, validConfigYAML)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Authz.AdminURL != "http://127.0.0.1:4445" {
		t.Errorf("admin_url = %q", cfg.Authz.AdminURL)
	}
	if cfg.Server.LoggedOutURL != "https://app.example.com/goodbye" {
		t.Errorf("logged_out_url = %q", cfg.Server.LoggedOutURL)
	}
	if cfg.Authz.RememberFor != DefaultRememberFor {
		t.Errorf("remember_for = %d, want default %d", cfg.Authz.RememberFor, DefaultRememberFor)
	}
}

func TestLoadConfigDerivesEndpoints(t *testing.T) {
	path := writeConfigFile(t, validConfigYAML)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Authz.TokenURL != "http://127.0.0.1:4444/oauth2/token" {
		t.Errorf("token_url = %q", cfg.Authz.TokenURL)
	}
	if cfg.Authz.JWKSURL != "http://127.0.0.1:4444/.well-known/jwks.json" {
		t.Errorf("jwks_url = %q", cfg.Authz.JWKSURL)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, validConfigYAML)
	t.Setenv("AUTHBFF_OAUTH2_CLIENT_ID", "env-client")
	t.Setenv("AUTHBFF_AUTHZ_ADMIN_URL", "http://10.0.0.1:4445")
	t.Setenv("AUTHBFF_SERVER_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.OAuth2.ClientID != "env-client" {
		t.Errorf("client_id = %q, want the env override", cfg.OAuth2.ClientID)
	}
	if cfg.Authz.AdminURL != "http://10.0.0.1:4445" {
		t.Errorf("admin_url = %q", cfg.Authz.AdminURL)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example.com" {
		t.Errorf("cors_origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	cases := []struct {
		name   string
		remove string
	}{
		{"no authz admin url", "admin_url: http://127.0.0.1:4445"},
		{"no identity admin url", "admin_url: http://127.0.0.1:4434"},
		{"no client id", "client_id: web-client"},
		{"no redirect url", "redirect_url: https://app.example.com/callback"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			content := strings.Replace(validConfigYAML, tc.remove, "", 1)
			path := writeConfigFile(t, content)
			if _, err := LoadConfig(path); err == nil {
				t.Error("LoadConfig succeeded with a required field missing")
			}
		})
	}
}

func TestLoadConfigRejectsBadScheme(t *testing.T) {
	content := strings.Replace(validConfigYAML, "admin_url: http://127.0.0.1:4445", "admin_url: ftp://127.0.0.1:4445", 1)
	path := writeConfigFile(t, content)
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig accepted a non-HTTP admin URL")
	}
}

func TestLoadConfigRejectsBadTimeout(t *testing.T) {
	content := strings.Replace(validConfigYAML,
		"admin_url: http://127.0.0.1:4434",
		"admin_url: http://127.0.0.1:4434\n  timeout: not-a-duration", 1)
	path := writeConfigFile(t, content)
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig accepted an invalid timeout")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadConfig succeeded on a missing file")
	}
}

func TestProductionRequiresTLSDomains(t *testing.T) {
	content := strings.Replace(validConfigYAML, "dev_mode: true", "dev_mode: false", 1)
	path := writeConfigFile(t, content)
	if _, err := LoadConfig(path); err == nil {
		t.Error("production config without TLS domains accepted")
	}
}

func TestTimeoutDefaults(t *testing.T) {
	d, err := AuthzConfig{}.timeout()
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if d != DefaultUpstreamTimeout {
		t.Errorf("timeout = %v, want %v", d, DefaultUpstreamTimeout)
	}

	d, err = IdentityConfig{Timeout: "2s"}.timeout()
	if err != nil {
		t.Fatalf("timeout: %v", err)
	}
	if d != 2*time.Second {
		t.Errorf("timeout = %v, want 2s", d)
	}
}
