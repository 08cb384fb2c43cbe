package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/dgellow/launch-bridge/internal/log"
)

// TemplateClaimNames are the session fields a token template may embed
var TemplateClaimNames = []string{"username", "email", "name", "image_url"}

// minSecretLength matches crypto.MinSecretLength; config cannot import crypto
const minSecretLength = 32

// secretFields lists, per section, the fields that must be env references
var secretFields = map[string][]string{
	"server": {"sessionSecret"},
	"login":  {"clientSecret"},
	"issuer": {"signingKey", "secretKey"},
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse processes config bytes the same way Load does
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, Version) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for section, fields := range secretFields {
		values, ok := rawConfig[section].(map[string]any)
		if !ok {
			continue
		}
		for _, field := range fields {
			value, exists := values[field]
			if !exists {
				continue
			}
			// Check if it's a string (bad) or a map (good - env ref)
			if _, isString := value.(string); isString {
				return fmt.Errorf("%s.%s must use environment variable reference for security", section, field)
			}
			if refMap, isMap := value.(map[string]any); isMap {
				if _, hasEnv := refMap["$env"]; !hasEnv {
					return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", section, field)
				}
			}
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if err := validateServer(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateLogin(&config.Login); err != nil {
		return fmt.Errorf("login config: %w", err)
	}
	if err := validateIssuer(&config.Issuer); err != nil {
		return fmt.Errorf("issuer config: %w", err)
	}
	if err := validateBridge(&config.Bridge, &config.Issuer); err != nil {
		return fmt.Errorf("bridge config: %w", err)
	}
	if config.Notifications.TTL < 0 {
		return fmt.Errorf("notifications.ttl cannot be negative")
	}
	if err := validateStorage(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	return nil
}

func validateServer(s *ServerConfig) error {
	if s.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if err := validateAbsoluteURL(s.BaseURL); err != nil {
		return fmt.Errorf("baseURL: %w", err)
	}
	if len(s.SessionSecret) < minSecretLength {
		return fmt.Errorf("sessionSecret must be at least %d characters (got %d). Generate with: openssl rand -base64 32", minSecretLength, len(s.SessionSecret))
	}
	if s.SessionTTL < 0 {
		return fmt.Errorf("sessionTtl cannot be negative")
	}
	if !s.SecureCookies {
		log.LogWarn("server.secureCookies is false - only use this for local development over plain HTTP")
	}
	return nil
}

func validateLogin(l *LoginConfig) error {
	switch l.Provider {
	case "oidc":
		if l.DiscoveryURL == "" && (l.AuthorizationURL == "" || l.TokenURL == "" || l.UserInfoURL == "") {
			return fmt.Errorf("either discoveryUrl or all endpoints (authorizationUrl, tokenUrl, userInfoUrl) must be provided")
		}
	case "google":
	case "azure":
		if l.TenantID == "" {
			return fmt.Errorf("tenantId is required for Azure AD")
		}
	case "":
		return fmt.Errorf("provider is required")
	default:
		return fmt.Errorf("unknown provider: %s (expected oidc, google or azure)", l.Provider)
	}
	if l.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if l.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	if err := validateAbsoluteURL(l.RedirectURI); err != nil {
		return fmt.Errorf("redirectUri: %w", err)
	}
	if len(l.AllowedDomains) == 0 {
		log.LogWarn("login.allowedDomains is empty - any account the provider authenticates can sign in")
	}
	return nil
}

func validateIssuer(i *IssuerConfig) error {
	switch i.Kind {
	case IssuerKindLocal:
		if len(i.SigningKey) < minSecretLength {
			return fmt.Errorf("signingKey must be at least %d characters (got %d)", minSecretLength, len(i.SigningKey))
		}
		if len(i.Templates) == 0 {
			return fmt.Errorf("at least one template is required for the local issuer")
		}
		for name, tmpl := range i.Templates {
			if tmpl.TTL <= 0 {
				return fmt.Errorf("template %s: ttl must be positive", name)
			}
			for _, claim := range tmpl.Claims {
				if !slices.Contains(TemplateClaimNames, claim) {
					return fmt.Errorf("template %s: unknown claim %q (expected one of %s)", name, claim, strings.Join(TemplateClaimNames, ", "))
				}
			}
		}
	case IssuerKindRemote:
		if err := validateAbsoluteURL(i.Endpoint); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		if i.SecretKey == "" {
			return fmt.Errorf("secretKey is required for the remote issuer")
		}
		if i.Timeout < 0 {
			return fmt.Errorf("timeout cannot be negative")
		}
	case "":
		return fmt.Errorf("kind is required")
	default:
		return fmt.Errorf("unknown kind: %s (expected local or remote)", i.Kind)
	}
	return nil
}

func validateBridge(b *BridgeConfig, issuer *IssuerConfig) error {
	if err := validateAbsoluteURL(b.DestinationURL); err != nil {
		return fmt.Errorf("destinationUrl: %w", err)
	}
	if b.Template == "" {
		return fmt.Errorf("template is required")
	}
	if issuer.Kind == IssuerKindLocal {
		if _, ok := issuer.Templates[b.Template]; !ok {
			return fmt.Errorf("template %s is not defined in issuer.templates", b.Template)
		}
	}
	if b.AcquireTimeout < 0 || b.IdleTimeout < 0 || b.CleanupInterval < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	if b.CleanupInterval > b.IdleTimeout {
		log.LogWarn("Bridge cleanup interval is greater than idle timeout")
	}
	return nil
}

func validateStorage(s *StorageConfig) error {
	switch s.Kind {
	case StorageKindMemory:
	case StorageKindFirestore:
		if s.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown kind: %s (expected memory or firestore)", s.Kind)
	}
	return nil
}

func validateAbsoluteURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}
