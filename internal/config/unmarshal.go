package config

import (
	"encoding/json"
	"fmt"

	"github.com/dgellow/launch-bridge/internal/emailutil"
)

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	// Use a raw type to parse references
	var raw struct {
		Addr           json.RawMessage `json:"addr"`
		BaseURL        json.RawMessage `json:"baseURL"`
		SessionSecret  json.RawMessage `json:"sessionSecret"`
		SessionTTL     string          `json:"sessionTtl"`
		AllowedOrigins []string        `json:"allowedOrigins"`
		SecureCookies  *bool           `json:"secureCookies"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if s.Addr, err = parseOptional(raw.Addr, "addr"); err != nil {
		return err
	}
	if s.BaseURL, err = parseOptional(raw.BaseURL, "baseURL"); err != nil {
		return err
	}
	secret, err := parseOptional(raw.SessionSecret, "sessionSecret")
	if err != nil {
		return err
	}
	s.SessionSecret = Secret(secret)

	if s.SessionTTL, err = parseDuration(raw.SessionTTL, "sessionTtl", 0); err != nil {
		return err
	}
	s.AllowedOrigins = raw.AllowedOrigins

	// Cookies are secure unless explicitly turned off for local development
	s.SecureCookies = raw.SecureCookies == nil || *raw.SecureCookies
	return nil
}

// UnmarshalJSON implements custom unmarshaling for LoginConfig
func (l *LoginConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Provider         string          `json:"provider"`
		ClientID         json.RawMessage `json:"clientId"`
		ClientSecret     json.RawMessage `json:"clientSecret"`
		RedirectURI      json.RawMessage `json:"redirectUri"`
		DiscoveryURL     string          `json:"discoveryUrl"`
		AuthorizationURL string          `json:"authorizationUrl"`
		TokenURL         string          `json:"tokenUrl"`
		UserInfoURL      string          `json:"userInfoUrl"`
		TenantID         string          `json:"tenantId"`
		Scopes           []string        `json:"scopes"`
		AllowedDomains   []string        `json:"allowedDomains"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.Provider = raw.Provider
	l.DiscoveryURL = raw.DiscoveryURL
	l.AuthorizationURL = raw.AuthorizationURL
	l.TokenURL = raw.TokenURL
	l.UserInfoURL = raw.UserInfoURL
	l.TenantID = raw.TenantID
	l.Scopes = raw.Scopes

	var err error
	if l.ClientID, err = parseOptional(raw.ClientID, "clientId"); err != nil {
		return err
	}
	secret, err := parseOptional(raw.ClientSecret, "clientSecret")
	if err != nil {
		return err
	}
	l.ClientSecret = Secret(secret)
	if l.RedirectURI, err = parseOptional(raw.RedirectURI, "redirectUri"); err != nil {
		return err
	}

	// Normalize domains for consistent comparison
	l.AllowedDomains = make([]string, 0, len(raw.AllowedDomains))
	for _, domain := range raw.AllowedDomains {
		l.AllowedDomains = append(l.AllowedDomains, emailutil.NormalizeDomain(domain))
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for TokenTemplate
func (t *TokenTemplate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Audience json.RawMessage `json:"audience"`
		TTL      string          `json:"ttl"`
		Claims   []string        `json:"claims"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	// audience may be a single string or a list
	if raw.Audience != nil {
		var single string
		if err := json.Unmarshal(raw.Audience, &single); err == nil {
			t.Audience = []string{single}
		} else if err := json.Unmarshal(raw.Audience, &t.Audience); err != nil {
			return fmt.Errorf("parsing audience: must be string or list of strings")
		}
	}

	var err error
	if t.TTL, err = parseDuration(raw.TTL, "ttl", DefaultTemplateTTL); err != nil {
		return err
	}
	t.Claims = raw.Claims
	return nil
}

// UnmarshalJSON implements custom unmarshaling for IssuerConfig
func (i *IssuerConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind       IssuerKind               `json:"kind"`
		Issuer     json.RawMessage          `json:"issuer"`
		SigningKey json.RawMessage          `json:"signingKey"`
		KeyID      string                   `json:"keyId"`
		Templates  map[string]TokenTemplate `json:"templates"`
		Endpoint   json.RawMessage          `json:"endpoint"`
		SecretKey  json.RawMessage          `json:"secretKey"`
		Timeout    string                   `json:"timeout"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	i.Kind = raw.Kind
	i.KeyID = raw.KeyID
	i.Templates = raw.Templates

	var err error
	if i.Issuer, err = parseOptional(raw.Issuer, "issuer"); err != nil {
		return err
	}
	signingKey, err := parseOptional(raw.SigningKey, "signingKey")
	if err != nil {
		return err
	}
	i.SigningKey = Secret(signingKey)

	if i.Endpoint, err = parseOptional(raw.Endpoint, "endpoint"); err != nil {
		return err
	}
	secretKey, err := parseOptional(raw.SecretKey, "secretKey")
	if err != nil {
		return err
	}
	i.SecretKey = Secret(secretKey)

	if i.Timeout, err = parseDuration(raw.Timeout, "timeout", 0); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for BridgeConfig
func (b *BridgeConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		DestinationURL  json.RawMessage `json:"destinationUrl"`
		Template        string          `json:"template"`
		AcquireTimeout  string          `json:"acquireTimeout"`
		IdleTimeout     string          `json:"idleTimeout"`
		CleanupInterval string          `json:"cleanupInterval"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if b.DestinationURL, err = parseOptional(raw.DestinationURL, "destinationUrl"); err != nil {
		return err
	}
	b.Template = raw.Template

	if b.AcquireTimeout, err = parseDuration(raw.AcquireTimeout, "acquireTimeout", 0); err != nil {
		return err
	}
	if b.IdleTimeout, err = parseDuration(raw.IdleTimeout, "idleTimeout", 0); err != nil {
		return err
	}
	if b.CleanupInterval, err = parseDuration(raw.CleanupInterval, "cleanupInterval", 0); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for NotificationsConfig
func (n *NotificationsConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		TTL string `json:"ttl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	n.TTL, err = parseDuration(raw.TTL, "ttl", 0)
	return err
}

// applyDefaults fills every omitted value, including whole omitted sections
func applyDefaults(c *Config) {
	if c.Server.SessionTTL == 0 {
		c.Server.SessionTTL = DefaultSessionTTL
	}
	if c.Issuer.Kind == IssuerKindRemote && c.Issuer.Timeout == 0 {
		c.Issuer.Timeout = DefaultIssuerTimeout
	}
	if c.Bridge.AcquireTimeout == 0 {
		c.Bridge.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.Bridge.IdleTimeout == 0 {
		c.Bridge.IdleTimeout = DefaultIdleTimeout
	}
	if c.Bridge.CleanupInterval == 0 {
		c.Bridge.CleanupInterval = DefaultCleanupInterval
	}
	if c.Notifications.TTL == 0 {
		c.Notifications.TTL = DefaultNotificationTTL
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageKindMemory
	}
	if c.Storage.Kind == StorageKindFirestore {
		if c.Storage.FirestoreDatabase == "" {
			c.Storage.FirestoreDatabase = DefaultFirestoreDatabase
		}
		if c.Storage.FirestoreCollection == "" {
			c.Storage.FirestoreCollection = DefaultFirestoreCollection
		}
	}
}
