package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setExampleEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LAUNCH_BRIDGE_SESSION_SECRET", "session-secret-that-is-at-least-32-bytes")
	t.Setenv("LAUNCH_BRIDGE_CLIENT_ID", "client-id")
	t.Setenv("LAUNCH_BRIDGE_CLIENT_SECRET", "client-secret")
	t.Setenv("LAUNCH_BRIDGE_SIGNING_KEY", "signing-key-that-is-at-least-32-bytes!!")
}

func TestLoad_Example(t *testing.T) {
	setExampleEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(Example), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, Secret("session-secret-that-is-at-least-32-bytes"), cfg.Server.SessionSecret)
	assert.Equal(t, 24*time.Hour, cfg.Server.SessionTTL)
	assert.False(t, cfg.Server.SecureCookies)

	assert.Equal(t, "oidc", cfg.Login.Provider)
	assert.Equal(t, "client-id", cfg.Login.ClientID)
	assert.Equal(t, []string{"example.com"}, cfg.Login.AllowedDomains)

	assert.Equal(t, IssuerKindLocal, cfg.Issuer.Kind)
	require.Contains(t, cfg.Issuer.Templates, "crawlmind")
	tmpl := cfg.Issuer.Templates["crawlmind"]
	assert.Equal(t, []string{"crawlmind"}, tmpl.Audience)
	assert.Equal(t, 60*time.Second, tmpl.TTL)
	assert.Equal(t, []string{"username", "email"}, tmpl.Claims)

	assert.Equal(t, "crawlmind", cfg.Bridge.Template)
	assert.Equal(t, 15*time.Second, cfg.Bridge.AcquireTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Bridge.IdleTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Bridge.CleanupInterval)
	assert.Equal(t, 5*time.Second, cfg.Notifications.TTL)
	assert.Equal(t, StorageKindMemory, cfg.Storage.Kind)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestParse_Version(t *testing.T) {
	_, err := Parse([]byte(`{}`))
	assert.ErrorContains(t, err, "config version is required")

	_, err = Parse([]byte(`{"version": "v0.0.1-DEV_EDITION"}`))
	assert.ErrorContains(t, err, "unsupported config version")
}

func TestParse_SecretsMustBeEnvRefs(t *testing.T) {
	setExampleEnv(t)

	tests := []struct {
		name    string
		replace [2]string
		wantErr string
	}{
		{
			name:    "plain session secret",
			replace: [2]string{`{"$env": "LAUNCH_BRIDGE_SESSION_SECRET"}`, `"plain-text-session-secret-value-000"`},
			wantErr: "server.sessionSecret must use environment variable reference",
		},
		{
			name:    "plain client secret",
			replace: [2]string{`{"$env": "LAUNCH_BRIDGE_CLIENT_SECRET"}`, `"plain"`},
			wantErr: "login.clientSecret must use environment variable reference",
		},
		{
			name:    "wrong reference kind",
			replace: [2]string{`{"$env": "LAUNCH_BRIDGE_SIGNING_KEY"}`, `{"$file": "/etc/key"}`},
			wantErr: `issuer.signingKey must use {"$env": "VAR_NAME"} format`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := strings.Replace(Example, tt.replace[0], tt.replace[1], 1)
			_, err := Parse([]byte(data))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParse_UnsetEnvVar(t *testing.T) {
	setExampleEnv(t)
	t.Setenv("LAUNCH_BRIDGE_SIGNING_KEY", "")

	_, err := Parse([]byte(Example))
	assert.ErrorContains(t, err, "environment variable LAUNCH_BRIDGE_SIGNING_KEY not set")
}

func validConfig() Config {
	cfg := Config{
		Version: Version,
		Server: ServerConfig{
			Addr:          ":8080",
			BaseURL:       "https://dashboard.example.com",
			SessionSecret: "session-secret-that-is-at-least-32-bytes",
			SecureCookies: true,
		},
		Login: LoginConfig{
			Provider:       "google",
			ClientID:       "client",
			ClientSecret:   "secret",
			RedirectURI:    "https://dashboard.example.com/auth/callback",
			AllowedDomains: []string{"example.com"},
		},
		Issuer: IssuerConfig{
			Kind:       IssuerKindLocal,
			SigningKey: "signing-key-that-is-at-least-32-bytes!!",
			Templates: map[string]TokenTemplate{
				"crawlmind": {Audience: []string{"crawlmind"}, TTL: time.Minute, Claims: []string{"username"}},
			},
		},
		Bridge: BridgeConfig{
			DestinationURL: "https://analytics.example.com/auth/bridge",
			Template:       "crawlmind",
		},
	}
	applyDefaults(&cfg)
	return cfg
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, "server config: addr is required"},
		{"relative base", func(c *Config) { c.Server.BaseURL = "/dashboard" }, "baseURL: must be an absolute http(s) URL"},
		{"short session secret", func(c *Config) { c.Server.SessionSecret = "short" }, "sessionSecret must be at least 32 characters"},
		{"unknown provider", func(c *Config) { c.Login.Provider = "myspace" }, "unknown provider: myspace"},
		{"azure without tenant", func(c *Config) { c.Login.Provider = "azure" }, "tenantId is required"},
		{"oidc without endpoints", func(c *Config) { c.Login.Provider = "oidc" }, "either discoveryUrl or all endpoints"},
		{"missing client secret", func(c *Config) { c.Login.ClientSecret = "" }, "clientSecret is required"},
		{"unknown issuer kind", func(c *Config) { c.Issuer.Kind = "magic" }, "unknown kind: magic"},
		{"short signing key", func(c *Config) { c.Issuer.SigningKey = "short" }, "signingKey must be at least 32 characters"},
		{"unknown template claim", func(c *Config) {
			c.Issuer.Templates["crawlmind"] = TokenTemplate{TTL: time.Minute, Claims: []string{"password"}}
		}, `unknown claim "password"`},
		{"remote without endpoint", func(c *Config) {
			c.Issuer = IssuerConfig{Kind: IssuerKindRemote, SecretKey: "sk"}
		}, "endpoint: is required"},
		{"remote valid", func(c *Config) {
			c.Issuer = IssuerConfig{Kind: IssuerKindRemote, Endpoint: "https://api.clerk.example", SecretKey: "sk"}
		}, ""},
		{"relative destination", func(c *Config) { c.Bridge.DestinationURL = "analytics/bridge" }, "destinationUrl: must be an absolute http(s) URL"},
		{"undefined template", func(c *Config) { c.Bridge.Template = "other" }, "template other is not defined"},
		{"firestore without project", func(c *Config) { c.Storage.Kind = StorageKindFirestore }, "gcpProject is required"},
		{"unknown storage", func(c *Config) { c.Storage.Kind = "redis" }, "unknown kind: redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
