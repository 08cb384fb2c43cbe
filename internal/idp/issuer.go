package idp

import (
	"context"
	"errors"

	"github.com/dgellow/launch-bridge/internal/session"
)

// ErrUnknownTemplate is returned when a template name is not configured
var ErrUnknownTemplate = errors.New("unknown token template")

// ErrNoProviderSession is returned by issuers that need the provider's session id
var ErrNoProviderSession = errors.New("session has no provider session id")

// TokenIssuer mints a short-lived signed token for the session from a named template.
// ("", nil) means the provider had no token to give.
type TokenIssuer interface {
	IssueToken(ctx context.Context, sess session.Session, template string) (string, error)
}
