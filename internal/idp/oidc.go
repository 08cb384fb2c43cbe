package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgellow/launch-bridge/internal/emailutil"
	"golang.org/x/oauth2"
)

// OIDCConfig configures a generic OIDC provider.
type OIDCConfig struct {
	// ProviderType identifies this provider (e.g., "oidc", "azure").
	ProviderType string

	// Discovery URL for OIDC discovery (optional if endpoints are provided directly).
	DiscoveryURL string

	// Direct endpoint configuration (used if DiscoveryURL is not set).
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string

	// OAuth client configuration.
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	AllowedDomains []string
}

// OIDCProvider implements the Provider interface for OIDC-compliant identity providers.
type OIDCProvider struct {
	providerType   string
	config         oauth2.Config
	userInfoURL    string
	allowedDomains []string
}

// oidcDiscoveryDocument represents the OIDC discovery document.
type oidcDiscoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
	Issuer                string `json:"issuer"`
}

// oidcUserInfoResponse represents the standard OIDC userinfo response.
type oidcUserInfoResponse struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
}

// NewOIDCProvider creates a new OIDC provider. Discovery runs once, here.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	var authURL, tokenURL, userInfoURL string

	if cfg.DiscoveryURL != "" {
		discovery, err := fetchOIDCDiscovery(ctx, cfg.DiscoveryURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch OIDC discovery: %w", err)
		}
		authURL = discovery.AuthorizationEndpoint
		tokenURL = discovery.TokenEndpoint
		userInfoURL = discovery.UserInfoEndpoint
	} else {
		if cfg.AuthorizationURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
			return nil, fmt.Errorf("either discoveryUrl or all endpoints (authorizationUrl, tokenUrl, userInfoUrl) must be provided")
		}
		authURL = cfg.AuthorizationURL
		tokenURL = cfg.TokenURL
		userInfoURL = cfg.UserInfoURL
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	providerType := cfg.ProviderType
	if providerType == "" {
		providerType = "oidc"
	}

	return &OIDCProvider{
		providerType: providerType,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		userInfoURL:    userInfoURL,
		allowedDomains: cfg.AllowedDomains,
	}, nil
}

func fetchOIDCDiscovery(ctx context.Context, discoveryURL string) (*oidcDiscoveryDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("discovery endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var discovery oidcDiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	if discovery.AuthorizationEndpoint == "" || discovery.TokenEndpoint == "" || discovery.UserInfoEndpoint == "" {
		return nil, fmt.Errorf("discovery document missing required endpoints")
	}

	return &discovery, nil
}

// Type returns the provider type.
func (p *OIDCProvider) Type() string {
	return p.providerType
}

// AuthURL generates the authorization URL.
func (p *OIDCProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// UserInfo fetches user identity from the OIDC userinfo endpoint.
func (p *OIDCProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	client := p.config.Client(ctx, token)
	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("failed to get user info: status %d: %s", resp.StatusCode, body)
	}

	var userInfoResp oidcUserInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&userInfoResp); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if userInfoResp.Sub == "" {
		return nil, fmt.Errorf("user info response has no subject")
	}

	domain := emailutil.ExtractDomain(userInfoResp.Email)
	if err := ValidateDomain(domain, p.allowedDomains); err != nil {
		return nil, err
	}

	return &Identity{
		ProviderType:      p.providerType,
		Subject:           userInfoResp.Sub,
		Email:             userInfoResp.Email,
		EmailVerified:     userInfoResp.EmailVerified,
		Name:              userInfoResp.Name,
		PreferredUsername: userInfoResp.PreferredUsername,
		Picture:           userInfoResp.Picture,
		Domain:            domain,
	}, nil
}
