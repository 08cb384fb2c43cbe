package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dgellow/launch-bridge/internal/emailutil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleProvider implements the Provider interface for Google OAuth.
// Google reports the hosted domain as `hd` and uses `verified_email`.
type GoogleProvider struct {
	config         oauth2.Config
	userInfoURL    string
	allowedDomains []string
}

// googleUserInfoResponse represents Google's userinfo response.
// Note: Google uses `hd` for hosted domain and `verified_email` instead of OIDC standard `email_verified`.
type googleUserInfoResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	HostedDomain  string `json:"hd"`
}

// NewGoogleProvider creates a new Google OAuth provider.
func NewGoogleProvider(clientID, clientSecret, redirectURI string, allowedDomains []string) *GoogleProvider {
	return &GoogleProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL:    "https://www.googleapis.com/oauth2/v2/userinfo",
		allowedDomains: allowedDomains,
	}
}

// Type returns the provider type.
func (p *GoogleProvider) Type() string {
	return "google"
}

// AuthURL generates the authorization URL.
func (p *GoogleProvider) AuthURL(state string) string {
	// hd only narrows the account chooser; UserInfo still enforces the allow-list
	if len(p.allowedDomains) == 1 {
		return p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("hd", p.allowedDomains[0]))
	}
	return p.config.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

// UserInfo fetches user information from Google's userinfo endpoint.
func (p *GoogleProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	client := p.config.Client(ctx, token)

	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get user info: status %d", resp.StatusCode)
	}

	var googleUser googleUserInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&googleUser); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if googleUser.Sub == "" {
		return nil, fmt.Errorf("user info response has no subject")
	}

	// Use Google's hosted domain if available, otherwise derive from email
	domain := googleUser.HostedDomain
	if domain == "" {
		domain = emailutil.ExtractDomain(googleUser.Email)
	}

	if err := ValidateDomain(domain, p.allowedDomains); err != nil {
		return nil, err
	}

	return &Identity{
		ProviderType:  "google",
		Subject:       googleUser.Sub,
		Email:         googleUser.Email,
		EmailVerified: googleUser.VerifiedEmail,
		Name:          googleUser.Name,
		Picture:       googleUser.Picture,
		Domain:        domain,
	}, nil
}
