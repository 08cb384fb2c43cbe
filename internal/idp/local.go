package idp

import (
	"context"
	"fmt"
	"time"

	"github.com/dgellow/launch-bridge/internal/config"
	"github.com/dgellow/launch-bridge/internal/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// LocalIssuer mints HS256 tokens in-process. It stands in for a hosted identity
// provider's template endpoint in development and self-hosted deployments.
type LocalIssuer struct {
	issuer     string
	keyID      string
	signingKey []byte
	templates  map[string]config.TokenTemplate
	now        func() time.Time
}

// NewLocalIssuer creates a local issuer from resolved config
func NewLocalIssuer(cfg config.IssuerConfig) (*LocalIssuer, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	if len(cfg.Templates) == 0 {
		return nil, fmt.Errorf("at least one template is required")
	}
	return &LocalIssuer{
		issuer:     cfg.Issuer,
		keyID:      cfg.KeyID,
		signingKey: []byte(cfg.SigningKey),
		templates:  cfg.Templates,
		now:        time.Now,
	}, nil
}

// IssueToken signs a fresh token for sess. Every call produces a new jti.
func (i *LocalIssuer) IssueToken(ctx context.Context, sess session.Session, template string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmpl, ok := i.templates[template]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, template)
	}
	if sess.UserID == "" {
		return "", fmt.Errorf("session has no user id")
	}

	now := i.now()
	claims := jwt.MapClaims{
		"sub":     sess.UserID,
		"user_id": sess.UserID,
		"iat":     jwt.NewNumericDate(now),
		"nbf":     jwt.NewNumericDate(now),
		"exp":     jwt.NewNumericDate(now.Add(tmpl.TTL)),
		"jti":     uuid.NewString(),
	}
	if i.issuer != "" {
		claims["iss"] = i.issuer
	}
	if len(tmpl.Audience) > 0 {
		claims["aud"] = jwt.ClaimStrings(tmpl.Audience)
	}
	if sess.ID != "" {
		claims["sid"] = sess.ID
	}

	for _, name := range tmpl.Claims {
		var value string
		switch name {
		case "username":
			value = sess.Username
		case "email":
			value = sess.Email
		case "name":
			value = sess.DisplayName
		case "image_url":
			value = sess.ImageURL
		default:
			return "", fmt.Errorf("template %s: unknown claim %q", template, name)
		}
		// Unset fields are omitted, not sent as empty strings
		if value != "" {
			claims[name] = value
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if i.keyID != "" {
		token.Header["kid"] = i.keyID
	}
	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
