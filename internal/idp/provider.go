package idp

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dgellow/launch-bridge/internal/emailutil"
	"github.com/dgellow/launch-bridge/internal/session"
	"golang.org/x/oauth2"
)

// Identity represents the user returned by any login provider.
type Identity struct {
	ProviderType      string `json:"provider_type"`
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Picture           string `json:"picture"`
	Domain            string `json:"domain"`
}

// Session converts the identity into the dashboard session. sessionID identifies the
// login and is what hosted token endpoints key their templates on.
func (i *Identity) Session(sessionID string) session.Session {
	username := i.PreferredUsername
	if username == "" {
		username = emailutil.LocalPart(i.Email)
	}
	return session.Session{
		ID:          sessionID,
		UserID:      i.Subject,
		Username:    username,
		DisplayName: i.Name,
		ImageURL:    i.Picture,
		Email:       emailutil.Normalize(i.Email),
		Provider:    i.ProviderType,
	}
}

// Provider abstracts login provider operations.
type Provider interface {
	// Type returns the provider type identifier (e.g., "google", "azure", "oidc").
	Type() string

	// AuthURL generates the authorization URL for the OAuth flow.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// UserInfo fetches the user's identity and enforces the domain allow-list
	// the provider was constructed with.
	UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

// ValidateDomain checks if the domain is in the allowed list.
// Returns nil if allowedDomains is empty (no restriction) or domain is allowed.
func ValidateDomain(domain string, allowedDomains []string) error {
	if len(allowedDomains) == 0 {
		return nil
	}
	if !slices.Contains(allowedDomains, strings.ToLower(domain)) {
		return fmt.Errorf("domain '%s' is not allowed. Contact your administrator", domain)
	}
	return nil
}
