package session

import "time"

// Session is the authenticated dashboard user as reported by the identity provider.
// It is read-only to the bridge and passed explicitly to whoever needs it.
type Session struct {
	ID          string `json:"id,omitempty"` // identity provider session id, needed by hosted token endpoints
	UserID      string `json:"user_id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Email       string `json:"email,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// Loaded reports whether the session is present and carries a user identifier.
func (s *Session) Loaded() bool {
	return s != nil && s.UserID != ""
}

// Greeting returns the name shown to the user, falling back the same way the dashboard does.
func (s *Session) Greeting() string {
	if s == nil {
		return "User"
	}
	switch {
	case s.Username != "":
		return s.Username
	case s.DisplayName != "":
		return s.DisplayName
	default:
		return "User"
	}
}

// BrowserCookie represents the data stored in encrypted browser session cookies
type BrowserCookie struct {
	Session Session   `json:"session"`
	Expires time.Time `json:"expires"`
}

// IsExpired reports whether the cookie is past its expiry
func (c BrowserCookie) IsExpired() bool {
	return time.Now().After(c.Expires)
}

// AuthorizationState represents the login flow state parameter
type AuthorizationState struct {
	Nonce     string `json:"nonce"`
	ReturnURL string `json:"return_url"`
}
