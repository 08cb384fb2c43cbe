package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TokenSigner provides HMAC-signed JSON tokens with optional expiry.
// Used for login state parameters; never for the tokens handed to the destination app.
type TokenSigner struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenSigner creates a new token signer
func NewTokenSigner(signingKey []byte, ttl time.Duration) TokenSigner {
	return TokenSigner{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

// TokenData wraps user data with metadata
type TokenData struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
}

// Sign marshals data to JSON, signs it with HMAC, and returns a base64-encoded token
func (ts *TokenSigner) Sign(v any) (string, error) {
	userData, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	tokenData := TokenData{Data: userData}
	if ts.ttl > 0 {
		tokenData.ExpiresAt = ts.now().Add(ts.ttl)
	}

	jsonData, err := json.Marshal(tokenData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token data: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(jsonData)
	return encoded + "." + SignData(encoded, ts.signingKey), nil
}

// Verify validates the signature, checks expiry, and unmarshals the data
func (ts *TokenSigner) Verify(token string, v any) error {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || signature == "" {
		return fmt.Errorf("invalid token format")
	}

	if !ValidateSignedData(encoded, signature, ts.signingKey) {
		return fmt.Errorf("invalid signature")
	}

	jsonData, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode token data: %w", err)
	}

	var tokenData TokenData
	if err := json.Unmarshal(jsonData, &tokenData); err != nil {
		return fmt.Errorf("failed to unmarshal token data: %w", err)
	}

	if !tokenData.ExpiresAt.IsZero() && ts.now().After(tokenData.ExpiresAt) {
		return fmt.Errorf("token expired")
	}

	if err := json.Unmarshal(tokenData.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}

	return nil
}
