package crypto

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrCSRFMissing  = errors.New("csrf token missing")
	ErrCSRFMismatch = errors.New("csrf header does not match cookie")
	ErrCSRFInvalid  = errors.New("csrf token invalid or expired")
)

// CSRFProtection issues and checks double-submit CSRF tokens. The same value goes into a
// cookie readable by the dashboard script and must come back in a request header. The
// value is nonce.issuedAt.signature, so a token planted by another site fails the
// signature check even when cookie and header agree.
type CSRFProtection struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewCSRFProtection creates tokens that stay valid for ttl
func NewCSRFProtection(signingKey []byte, ttl time.Duration) CSRFProtection {
	return CSRFProtection{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Generate issues a token for the CSRF cookie
func (c *CSRFProtection) Generate() (string, error) {
	nonce, err := GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	payload := nonce + "." + strconv.FormatInt(c.now().Unix(), 10)
	return payload + "." + SignData(payload, c.signingKey), nil
}

// Validate reports whether token was issued with this key and has not expired
func (c *CSRFProtection) Validate(token string) bool {
	i := strings.LastIndexByte(token, '.')
	if i < 0 {
		return false
	}
	payload, signature := token[:i], token[i+1:]
	if !ValidateSignedData(payload, signature, c.signingKey) {
		return false
	}

	_, issued, ok := strings.Cut(payload, ".")
	if !ok {
		return false
	}
	issuedAt, err := strconv.ParseInt(issued, 10, 64)
	if err != nil {
		return false
	}
	return c.now().Sub(time.Unix(issuedAt, 0)) <= c.ttl
}

// Check compares the cookie and header halves of a request and validates the token
func (c *CSRFProtection) Check(cookieValue, headerValue string) error {
	if cookieValue == "" || headerValue == "" {
		return ErrCSRFMissing
	}
	if subtle.ConstantTimeCompare([]byte(cookieValue), []byte(headerValue)) != 1 {
		return ErrCSRFMismatch
	}
	if !c.Validate(headerValue) {
		return ErrCSRFInvalid
	}
	return nil
}
