package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// FakeOIDCServer simulates a generic OIDC provider that signs in one fixed user
type FakeOIDCServer struct {
	*httptest.Server
}

// NewFakeOIDCServer starts a fake OIDC provider with discovery
func NewFakeOIDCServer() *FakeOIDCServer {
	mux := http.NewServeMux()
	s := &FakeOIDCServer{Server: httptest.NewServer(mux)}
	baseURL := s.URL

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + "/authorize",
			"token_endpoint":         baseURL + "/token",
			"userinfo_endpoint":      baseURL + "/userinfo",
		})
	})

	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		redirectURI := r.URL.Query().Get("redirect_uri")
		state := r.URL.Query().Get("state")
		http.Redirect(w, r, fmt.Sprintf("%s?code=oidc-test-code&state=%s", redirectURI, state), http.StatusFound)
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("code") != "oidc-test-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":             "invalid_grant",
				"error_description": "Invalid authorization code",
			})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "oidc-test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer oidc-test-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":                "oidc-12345",
			"email":              "ada@oidc-test.com",
			"email_verified":     true,
			"name":               "Ada Lovelace",
			"preferred_username": "ada",
		})
	})

	return s
}

// FakeTokenServer simulates a hosted identity provider's template endpoint:
// POST /v1/sessions/{sessionID}/tokens/{template}
type FakeTokenServer struct {
	*httptest.Server

	secretKey  string
	signingKey []byte

	mu       sync.Mutex
	issued   []string
	sessions []string
}

// NewFakeTokenServer starts a token endpoint that accepts secretKey as bearer
func NewFakeTokenServer(secretKey string) *FakeTokenServer {
	s := &FakeTokenServer{
		secretKey:  secretKey,
		signingKey: []byte("fake-token-server-signing-key"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions/{session}/tokens/{template}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.secretKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		sessionID := r.PathValue("session")
		template := r.PathValue("template")
		if template != "app" {
			http.NotFound(w, r)
			return
		}

		s.mu.Lock()
		n := len(s.issued) + 1
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":      "oidc-12345",
			"user_id":  "oidc-12345",
			"username": "ada",
			"aud":      "app",
			"iat":      time.Now().Unix(),
			"exp":      time.Now().Add(time.Minute).Unix(),
			"n":        n,
		}).SignedString(s.signingKey)
		if err == nil {
			s.issued = append(s.issued, token)
			s.sessions = append(s.sessions, sessionID)
		}
		s.mu.Unlock()

		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"jwt": token})
	})

	s.Server = httptest.NewServer(mux)
	return s
}

// Issued returns every token handed out so far, oldest first
func (s *FakeTokenServer) Issued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.issued...)
}

// Sessions returns the session id of every token request, oldest first
func (s *FakeTokenServer) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sessions...)
}

// FakeDestination records the handoff requests it receives
type FakeDestination struct {
	*httptest.Server

	mu       sync.Mutex
	received []string
}

// NewFakeDestination starts a destination app serving /auth/bridge
func NewFakeDestination() *FakeDestination {
	d := &FakeDestination{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/bridge", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.received = append(d.received, r.URL.String())
		d.mu.Unlock()
		_, _ = w.Write([]byte("welcome"))
	})
	d.Server = httptest.NewServer(mux)
	return d
}

// Received returns the request URIs of every handoff, oldest first
func (d *FakeDestination) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}
