package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Version is the config format accepted by Load. Variants may append a suffix.
const Version = "launch-bridge/v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// IssuerKind selects the token issuer implementation
type IssuerKind string

const (
	// IssuerKindLocal mints HS256 tokens in-process from configured templates.
	// Meant for development and for deployments without a hosted identity provider.
	IssuerKindLocal IssuerKind = "local"

	// IssuerKindRemote asks a hosted identity provider to mint a token from one
	// of its templates for the user's provider session.
	IssuerKindRemote IssuerKind = "remote"
)

// StorageKind selects where user records are kept
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFirestore StorageKind = "firestore"
)

// ServerConfig configures the dashboard HTTP server
type ServerConfig struct {
	Addr           string        `json:"addr"`
	BaseURL        string        `json:"baseURL"`
	SessionSecret  Secret        `json:"sessionSecret"`
	SessionTTL     time.Duration `json:"sessionTtl"`
	AllowedOrigins []string      `json:"allowedOrigins"`
	SecureCookies  bool          `json:"secureCookies"`
}

// LoginConfig configures the identity provider used to sign users in
type LoginConfig struct {
	Provider         string   `json:"provider"` // "oidc", "google" or "azure"
	ClientID         string   `json:"clientId"`
	ClientSecret     Secret   `json:"clientSecret"`
	RedirectURI      string   `json:"redirectUri"`
	DiscoveryURL     string   `json:"discoveryUrl,omitempty"`
	AuthorizationURL string   `json:"authorizationUrl,omitempty"`
	TokenURL         string   `json:"tokenUrl,omitempty"`
	UserInfoURL      string   `json:"userInfoUrl,omitempty"`
	TenantID         string   `json:"tenantId,omitempty"`
	Scopes           []string `json:"scopes,omitempty"`
	AllowedDomains   []string `json:"allowedDomains,omitempty"`
}

// TokenTemplate describes the claims a local issuer puts in a token
type TokenTemplate struct {
	Audience []string      `json:"audience"`
	TTL      time.Duration `json:"ttl"`
	// Claims lists session fields copied into the token: username, email, name, image_url
	Claims []string `json:"claims"`
}

// IssuerConfig configures the token issuer
type IssuerConfig struct {
	Kind IssuerKind `json:"kind"`

	// Local
	Issuer     string                   `json:"issuer,omitempty"`
	SigningKey Secret                   `json:"signingKey,omitempty"`
	KeyID      string                   `json:"keyId,omitempty"`
	Templates  map[string]TokenTemplate `json:"templates,omitempty"`

	// Remote
	Endpoint  string        `json:"endpoint,omitempty"`
	SecretKey Secret        `json:"secretKey,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// BridgeConfig configures the launch bridge itself
type BridgeConfig struct {
	DestinationURL  string        `json:"destinationUrl"`
	Template        string        `json:"template"`
	AcquireTimeout  time.Duration `json:"acquireTimeout"`
	IdleTimeout     time.Duration `json:"idleTimeout"`
	CleanupInterval time.Duration `json:"cleanupInterval"`
}

// NotificationsConfig configures the transient notification queue
type NotificationsConfig struct {
	TTL time.Duration `json:"ttl"`
}

// StorageConfig configures the user record store
type StorageConfig struct {
	Kind                StorageKind `json:"kind"`
	GCPProject          string      `json:"gcpProject,omitempty"`
	FirestoreDatabase   string      `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string      `json:"firestoreCollection,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version       string              `json:"version"`
	Server        ServerConfig        `json:"server"`
	Login         LoginConfig         `json:"login"`
	Issuer        IssuerConfig        `json:"issuer"`
	Bridge        BridgeConfig        `json:"bridge"`
	Notifications NotificationsConfig `json:"notifications"`
	Storage       StorageConfig       `json:"storage"`
}

// Defaults applied by UnmarshalJSON when a field is omitted
const (
	DefaultSessionTTL          = 24 * time.Hour
	DefaultTemplateTTL         = 60 * time.Second
	DefaultIssuerTimeout       = 10 * time.Second
	DefaultAcquireTimeout      = 15 * time.Second
	DefaultIdleTimeout         = 30 * time.Minute
	DefaultCleanupInterval     = 5 * time.Minute
	DefaultNotificationTTL     = 5 * time.Second
	DefaultFirestoreDatabase   = "(default)"
	DefaultFirestoreCollection = "launch_bridge_users"
)

// RawConfigValue represents a value that could be a plain string or an env ref.
// This is only used during parsing, not in the final config.
type RawConfigValue struct {
	value string
}

// ParseConfigValue parses a JSON value that could be a string or reference object
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return nil, fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return &RawConfigValue{value: value}, nil
}

// parseOptional resolves raw when present and returns "" otherwise
func parseOptional(raw json.RawMessage, field string) (string, error) {
	if raw == nil {
		return "", nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return parsed.value, nil
}

// parseDuration parses s, falling back to def when s is empty
func parseDuration(s, field string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}
