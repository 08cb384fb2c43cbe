// Package tokens acquires fresh session-bound tokens from the identity provider.
package tokens

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgellow/launch-bridge/internal/idp"
	"github.com/dgellow/launch-bridge/internal/log"
	"github.com/dgellow/launch-bridge/internal/session"
)

var (
	// ErrTokenUnavailable is returned when the provider produced no token
	ErrTokenUnavailable = errors.New("token unavailable")

	// ErrNoToken is the ErrTokenUnavailable returned when the provider answered but
	// had no token to give, as opposed to failing
	ErrNoToken = fmt.Errorf("%w: identity provider returned no token", ErrTokenUnavailable)
)

// Service is bound to one session and one issuer. Every Acquire asks the issuer
// again: there is no cache, no sharing between concurrent calls and no retry.
type Service struct {
	issuer  idp.TokenIssuer
	session session.Session
}

// NewService binds an issuer to a session
func NewService(issuer idp.TokenIssuer, sess session.Session) *Service {
	return &Service{issuer: issuer, session: sess}
}

// Session returns the session the service acquires tokens for
func (s *Service) Session() session.Session {
	return s.session
}

// Acquire requests a new token from the named template. An absent token and any
// issuer failure both come back as ErrTokenUnavailable, wrapping the cause if any.
func (s *Service) Acquire(ctx context.Context, template string) (string, error) {
	token, err := s.issuer.IssueToken(ctx, s.session, template)
	if err != nil {
		log.LogDebugWithFields("tokens", "Token acquisition failed", map[string]any{
			"user_id":  s.session.UserID,
			"template": template,
			"error":    err.Error(),
		})
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	if token == "" {
		log.LogDebugWithFields("tokens", "Identity provider returned no token", map[string]any{
			"user_id":  s.session.UserID,
			"template": template,
		})
		return "", ErrNoToken
	}

	log.LogTraceWithFields("tokens", "Token acquired", map[string]any{
		"user_id":  s.session.UserID,
		"template": template,
		"length":   len(token),
	})
	return token, nil
}
