package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/launch-bridge/internal/log"
)

// Cookie names used by the dashboard
const (
	SessionCookie = "launch_bridge_session"
	CSRFCookie    = "launch_bridge_csrf"
)

// Jar sets and clears dashboard cookies. Secure should only be false for local
// development over plain HTTP.
type Jar struct {
	Secure bool
}

// SetSession sets the encrypted session cookie
func (j Jar) SetSession(w http.ResponseWriter, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   j.Secure,
		"sameSite": "Lax",
	})
}

// SetCSRF sets the CSRF token cookie. The dashboard echoes it back in a header.
func (j Jar) SetCSRF(w http.ResponseWriter, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: false, // read by the dashboard script
		Secure:   j.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// Clear removes a cookie by setting MaxAge to -1
func (j Jar) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		Secure: j.Secure,
		MaxAge: -1,
	})
}

// ClearSession removes the session and CSRF cookies
func (j Jar) ClearSession(w http.ResponseWriter) {
	j.Clear(w, SessionCookie)
	j.Clear(w, CSRFCookie)
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetSession retrieves the session cookie value
func GetSession(r *http.Request) (string, error) {
	return Get(r, SessionCookie)
}

// GetCSRF retrieves the CSRF cookie value
func GetCSRF(r *http.Request) (string, error) {
	return Get(r, CSRFCookie)
}
