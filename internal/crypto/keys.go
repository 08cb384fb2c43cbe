package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes derived from the configured session secret
const (
	PurposeCookie = "launch-bridge/cookie"
	PurposeState  = "launch-bridge/login-state"
	PurposeCSRF   = "launch-bridge/csrf"
)

// MinSecretLength is the shortest session secret accepted
const MinSecretLength = 32

// DeriveKey expands secret into a 32-byte key bound to purpose, so one configured
// secret never signs two kinds of value with the same key.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", purpose, err)
	}
	return key, nil
}
