package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/launch-bridge/internal/bridge"
	"github.com/dgellow/launch-bridge/internal/cookie"
	"github.com/dgellow/launch-bridge/internal/crypto"
	"github.com/dgellow/launch-bridge/internal/idp"
	"github.com/dgellow/launch-bridge/internal/metrics"
	"github.com/dgellow/launch-bridge/internal/session"
	"github.com/dgellow/launch-bridge/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testDestination = "https://app.example.com/auth/bridge"

var testSession = session.Session{
	ID:       "sess_1",
	UserID:   "user_1",
	Username: "ada",
	Email:    "ada@example.com",
	Provider: "mock",
}

// stubIssuer hands out numbered tokens, or the configured override
type stubIssuer struct {
	mu       sync.Mutex
	n        int
	token    *string
	err      error
	sessions []session.Session
}

func (s *stubIssuer) IssueToken(ctx context.Context, sess session.Session, template string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	s.sessions = append(s.sessions, sess)
	if s.err != nil {
		return "", s.err
	}
	if s.token != nil {
		return *s.token, nil
	}
	payload := fmt.Sprintf(`{"user_id":%q,"exp":1700000000,"n":%d}`, sess.UserID, s.n)
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig", nil
}

func (s *stubIssuer) set(token *string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.err = err
}

func strPtr(s string) *string { return &s }

// mockIDPProvider is a mock login provider for testing
type mockIDPProvider struct {
	userInfoErr error
}

func (m *mockIDPProvider) Type() string {
	return "mock"
}

func (m *mockIDPProvider) AuthURL(state string) string {
	return "https://auth.example.com/authorize?state=" + state
}

func (m *mockIDPProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "bad" {
		return nil, fmt.Errorf("invalid_grant")
	}
	return &oauth2.Token{AccessToken: "test-token"}, nil
}

func (m *mockIDPProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*idp.Identity, error) {
	if m.userInfoErr != nil {
		return nil, m.userInfoErr
	}
	return &idp.Identity{
		ProviderType:      "mock",
		Subject:           "user_1",
		Email:             "Ada@Example.com",
		EmailVerified:     true,
		Name:              "Ada Lovelace",
		PreferredUsername: "ada",
		Domain:            "example.com",
	}, nil
}

type testServer struct {
	handler   http.Handler
	auth      *AuthHandlers
	store     *storage.MemoryStorage
	registry  *bridge.Registry
	issuer    *stubIssuer
	provider  *mockIDPProvider
	encryptor crypto.Encryptor
	csrf      crypto.CSRFProtection
	csrfToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	secret := []byte(strings.Repeat("s", 32))
	cookieKey, err := crypto.DeriveKey(secret, crypto.PurposeCookie)
	require.NoError(t, err)
	stateKey, err := crypto.DeriveKey(secret, crypto.PurposeState)
	require.NoError(t, err)
	csrfKey, err := crypto.DeriveKey(secret, crypto.PurposeCSRF)
	require.NoError(t, err)

	encryptor, err := crypto.NewEncryptor(cookieKey)
	require.NoError(t, err)
	csrf := crypto.NewCSRFProtection(csrfKey, time.Hour)
	csrfToken, err := csrf.Generate()
	require.NoError(t, err)

	ts := &testServer{
		store:     storage.NewMemoryStorage(),
		issuer:    &stubIssuer{},
		provider:  &mockIDPProvider{},
		encryptor: encryptor,
		csrf:      csrf,
		csrfToken: csrfToken,
	}
	m := metrics.New()
	ts.registry = bridge.NewRegistry(bridge.Config{
		Destination:    testDestination,
		Template:       "app",
		AcquireTimeout: time.Second,
	}, ts.issuer, bridge.WithMetrics(m))
	t.Cleanup(ts.registry.Close)

	jar := cookie.Jar{}
	ts.auth = NewAuthHandlers(ts.provider, ts.store, encryptor, stateKey, csrf, jar, time.Hour)
	ts.handler = NewRouter(Routes{
		Auth:    ts.auth,
		Bridge:  NewBridgeHandlers(ts.registry, ts.store, m, nil),
		Health:  NewHealthHandler(ts.registry.Len),
		Metrics: m.Handler(),
		Session: NewSessionMiddleware(encryptor, jar),
		CSRF:    NewCSRFMiddleware(csrf),
	})
	return ts
}

func (ts *testServer) sessionCookie(t *testing.T, sess session.Session, expires time.Time) *http.Cookie {
	t.Helper()
	data, err := json.Marshal(session.BrowserCookie{Session: sess, Expires: expires})
	require.NoError(t, err)
	sealed, err := ts.encryptor.Encrypt(string(data))
	require.NoError(t, err)
	return &http.Cookie{Name: cookie.SessionCookie, Value: sealed}
}

// request sends an authenticated request carrying the CSRF cookie and header
func (ts *testServer) request(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.AddCookie(ts.sessionCookie(t, testSession, time.Now().Add(time.Hour)))
	req.AddCookie(&http.Cookie{Name: cookie.CSRFCookie, Value: ts.csrfToken})
	req.Header.Set(CSRFHeader, ts.csrfToken)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

// settle creates the user's bridge and waits for its initial refresh to finish
func (ts *testServer) settle(t *testing.T) bridge.Snapshot {
	t.Helper()
	w := ts.request(t, http.MethodGet, "/api/bridge", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot bridge.Snapshot
	require.Eventually(t, func() bool {
		entry, ok := ts.registry.Lookup(testSession.UserID)
		if !ok {
			return false
		}
		snapshot = entry.Controller.Snapshot()
		return snapshot.Sequence >= 1 && snapshot.State != bridge.StateGenerating
	}, time.Second, 5*time.Millisecond)
	return snapshot
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	resp := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Bridges)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.settle(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "launch_bridge_refresh_total")
}

func TestAuthenticationBoundaries(t *testing.T) {
	ts := newTestServer(t)

	paths := []string{
		"/launch",
		"/api/session",
		"/api/bridge",
		"/api/notifications",
		"/api/view",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			ts.handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}

	t.Run("health is public", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSessionMiddlewareRejectsBadCookies(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"garbage", &http.Cookie{Name: cookie.SessionCookie, Value: "not-encrypted"}},
		{"expired", ts.sessionCookie(t, testSession, time.Now().Add(-time.Minute))},
		{"no user", ts.sessionCookie(t, session.Session{Username: "ghost"}, time.Now().Add(time.Hour))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			req.AddCookie(tt.cookie)
			w := httptest.NewRecorder()
			ts.handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			var cleared bool
			for _, c := range w.Result().Cookies() {
				if c.Name == cookie.SessionCookie && c.MaxAge < 0 {
					cleared = true
				}
			}
			assert.True(t, cleared, "bad session cookie should be cleared")
		})
	}
}

func TestCSRFRequiredForStateChanges(t *testing.T) {
	ts := newTestServer(t)
	ts.settle(t)

	tests := []struct {
		name   string
		header string
		cookie string
	}{
		{"missing header", "", ts.csrfToken},
		{"missing cookie", ts.csrfToken, ""},
		{"mismatch", ts.csrfToken, "other"},
		{"forged", "nonce.1.sig", "nonce.1.sig"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/bridge/refresh", nil)
			req.AddCookie(ts.sessionCookie(t, testSession, time.Now().Add(time.Hour)))
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: cookie.CSRFCookie, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeader, tt.header)
			}
			w := httptest.NewRecorder()
			ts.handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}
}

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name              string
		allowedOrigins    []string
		requestOrigin     string
		method            string
		expectAllowOrigin string
		expectCredentials bool
	}{
		{
			name:              "allowed origin",
			allowedOrigins:    []string{"https://dash.example.com"},
			requestOrigin:     "https://dash.example.com",
			method:            http.MethodGet,
			expectAllowOrigin: "https://dash.example.com",
			expectCredentials: true,
		},
		{
			name:           "disallowed origin",
			allowedOrigins: []string{"https://dash.example.com"},
			requestOrigin:  "https://evil.com",
			method:         http.MethodGet,
		},
		{
			name:              "empty allowed origins",
			allowedOrigins:    nil,
			requestOrigin:     "https://dash.example.com",
			method:            http.MethodGet,
			expectAllowOrigin: "*",
		},
		{
			name:              "preflight request",
			allowedOrigins:    []string{"https://dash.example.com"},
			requestOrigin:     "https://dash.example.com",
			method:            http.MethodOptions,
			expectAllowOrigin: "https://dash.example.com",
			expectCredentials: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			handler := NewCORSMiddleware(tt.allowedOrigins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/bridge", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expectAllowOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.expectCredentials {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
			}
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), CSRFHeader)
			assert.Equal(t, tt.method != http.MethodOptions, reached)
		})
	}
}

func TestResponseWriterDelegator(t *testing.T) {
	rec := httptest.NewRecorder()
	w := wrapResponseWriter(rec)

	w.WriteHeader(http.StatusTeapot)
	w.WriteHeader(http.StatusOK)
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	w.Flush()

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusTeapot, w.Status())
	assert.Equal(t, 5, w.BytesWritten())
	assert.True(t, rec.Flushed)
	assert.Equal(t, rec, w.Unwrap())
}

func TestRecoverMiddleware(t *testing.T) {
	handler := NewRecoverMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSessionFromContext(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)

	sess, ok := SessionFromContext(WithSession(context.Background(), testSession))
	require.True(t, ok)
	assert.Equal(t, testSession, *sess)
}
