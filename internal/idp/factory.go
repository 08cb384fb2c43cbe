package idp

import (
	"context"
	"fmt"

	"github.com/dgellow/launch-bridge/internal/config"
)

// NewProvider creates a login Provider based on the LoginConfig.
func NewProvider(ctx context.Context, cfg config.LoginConfig) (Provider, error) {
	switch cfg.Provider {
	case "google":
		return NewGoogleProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			cfg.AllowedDomains,
		), nil

	case "azure":
		return NewAzureProvider(
			ctx,
			cfg.TenantID,
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			cfg.AllowedDomains,
		)

	case "oidc":
		return NewOIDCProvider(ctx, OIDCConfig{
			ProviderType:     "oidc",
			DiscoveryURL:     cfg.DiscoveryURL,
			AuthorizationURL: cfg.AuthorizationURL,
			TokenURL:         cfg.TokenURL,
			UserInfoURL:      cfg.UserInfoURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     string(cfg.ClientSecret),
			RedirectURI:      cfg.RedirectURI,
			Scopes:           cfg.Scopes,
			AllowedDomains:   cfg.AllowedDomains,
		})

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
	}
}

// NewTokenIssuer creates the TokenIssuer based on the IssuerConfig.
func NewTokenIssuer(ctx context.Context, cfg config.IssuerConfig) (TokenIssuer, error) {
	switch cfg.Kind {
	case config.IssuerKindLocal:
		return NewLocalIssuer(cfg)
	case config.IssuerKindRemote:
		return NewRemoteIssuer(ctx, cfg.Endpoint, string(cfg.SecretKey), cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown issuer kind: %s", cfg.Kind)
	}
}
