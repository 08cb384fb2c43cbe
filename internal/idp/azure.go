package idp

import (
	"context"
	"fmt"
)

// NewAzureProvider creates an Azure AD provider using OIDC discovery.
// Azure AD is OIDC-compliant, so this is the generic OIDC provider with the tenant's discovery URL.
func NewAzureProvider(ctx context.Context, tenantID, clientID, clientSecret, redirectURI string, allowedDomains []string) (*OIDCProvider, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantId is required for Azure AD")
	}

	discoveryURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/v2.0/.well-known/openid-configuration",
		tenantID,
	)

	return NewOIDCProvider(ctx, OIDCConfig{
		ProviderType:   "azure",
		DiscoveryURL:   discoveryURL,
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		RedirectURI:    redirectURI,
		Scopes:         []string{"openid", "email", "profile"},
		AllowedDomains: allowedDomains,
	})
}
