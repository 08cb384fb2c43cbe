package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/launch-bridge/internal"
	"github.com/dgellow/launch-bridge/internal/bridge"
	"github.com/dgellow/launch-bridge/internal/bridgeurl"
	"github.com/dgellow/launch-bridge/internal/config"
	"github.com/dgellow/launch-bridge/internal/cookie"
	"github.com/dgellow/launch-bridge/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app         *httptest.Server
	oidc        *FakeOIDCServer
	tokens      *FakeTokenServer
	destination *FakeDestination
	client      *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		oidc:        NewFakeOIDCServer(),
		tokens:      NewFakeTokenServer("hosted-secret"),
		destination: NewFakeDestination(),
	}
	t.Cleanup(env.oidc.Close)
	t.Cleanup(env.tokens.Close)
	t.Cleanup(env.destination.Close)

	// The redirect URI needs the app's address, which only exists once it listens
	var handler http.Handler = http.NotFoundHandler()
	env.app = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(env.app.Close)

	cfg := config.Config{
		Version: config.Version,
		Server: config.ServerConfig{
			Addr:          "127.0.0.1:0",
			BaseURL:       env.app.URL,
			SessionSecret: config.Secret(strings.Repeat("s", 32)),
			SessionTTL:    time.Hour,
		},
		Login: config.LoginConfig{
			Provider:       "oidc",
			DiscoveryURL:   env.oidc.URL + "/.well-known/openid-configuration",
			ClientID:       "launch-bridge",
			ClientSecret:   config.Secret("client-secret"),
			RedirectURI:    env.app.URL + "/auth/callback",
			AllowedDomains: []string{"oidc-test.com"},
		},
		Issuer: config.IssuerConfig{
			Kind:      config.IssuerKindRemote,
			Endpoint:  env.tokens.URL,
			SecretKey: config.Secret("hosted-secret"),
			Timeout:   5 * time.Second,
		},
		Bridge: config.BridgeConfig{
			DestinationURL:  env.destination.URL + "/auth/bridge",
			Template:        "app",
			AcquireTimeout:  5 * time.Second,
			IdleTimeout:     time.Hour,
			CleanupInterval: time.Hour,
		},
		Notifications: config.NotificationsConfig{TTL: time.Minute},
		Storage:       config.StorageConfig{Kind: config.StorageKindMemory},
	}

	app, err := internal.NewLaunchBridge(context.Background(), cfg)
	require.NoError(t, err)
	handler = app.Handler()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.client = &http.Client{Jar: jar, Timeout: 10 * time.Second}
	return env
}

func (env *testEnv) csrfToken(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(env.app.URL)
	require.NoError(t, err)
	for _, c := range env.client.Jar.Cookies(u) {
		if c.Name == cookie.CSRFCookie {
			return c.Value
		}
	}
	t.Fatal("no CSRF cookie")
	return ""
}

func (env *testEnv) post(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.app.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set(server.CSRFHeader, env.csrfToken(t))
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (env *testEnv) snapshot(t *testing.T) bridge.Snapshot {
	t.Helper()
	resp, err := env.client.Get(env.app.URL + "/api/bridge")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot bridge.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	return snapshot
}

func (env *testEnv) login(t *testing.T) {
	t.Helper()
	resp, err := env.client.Get(env.app.URL + "/auth/login?return_to=/api/session")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body server.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "oidc-12345", body.Session.UserID)
	assert.Equal(t, "ada", body.Greeting)
	require.NotNil(t, body.User, "login records the user")
	assert.Equal(t, "ada@oidc-test.com", body.User.Email)
}

func TestBridgeFlow(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.Get(env.app.URL + "/api/bridge")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	env.login(t)

	// First access creates the bridge and refreshes it once in the background
	var ready bridge.Snapshot
	require.Eventually(t, func() bool {
		ready = env.snapshot(t)
		return ready.State == bridge.StateReady
	}, 5*time.Second, 20*time.Millisecond)
	require.Len(t, env.tokens.Issued(), 1)

	token, _, err := bridgeurl.Parse(ready.URL)
	require.NoError(t, err)
	assert.Equal(t, env.tokens.Issued()[0], token)

	// Refreshing acquires a new token and a later stamp
	resp = env.post(t, "/api/bridge/refresh")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	refreshed := env.snapshot(t)
	assert.Equal(t, bridge.StateReady, refreshed.State)
	newToken, _, err := bridgeurl.Parse(refreshed.URL)
	require.NoError(t, err)
	assert.NotEqual(t, token, newToken)
	assert.Equal(t, env.tokens.Issued()[1], newToken)

	// Every token request carried the same provider session
	sessions := env.tokens.Sessions()
	require.Len(t, sessions, 2)
	assert.NotEmpty(t, sessions[0])
	assert.Equal(t, sessions[0], sessions[1])

	// Launch lands on the destination with the current bridge
	resp, err = env.client.Get(env.app.URL + "/launch")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	received := env.destination.Received()
	require.Len(t, received, 1)
	handoff, err := url.Parse(received[0])
	require.NoError(t, err)
	assert.Equal(t, newToken, handoff.Query().Get("token"))
	assert.NotEmpty(t, handoff.Query().Get("t"))

	// Debug decodes a fresh token without touching the bridge
	resp = env.post(t, "/api/bridge/debug")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var debug server.DebugResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&debug))
	assert.Equal(t, "oidc-12345", debug.Report.UserID)
	assert.Equal(t, "app", debug.Report.Audience)
	assert.Equal(t, refreshed.URL, env.snapshot(t).URL)

	resp, err = env.client.Get(env.app.URL + "/api/session")
	require.NoError(t, err)
	var session server.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	resp.Body.Close()
	require.NotNil(t, session.User)
	assert.Equal(t, int64(1), session.User.Launches)
}

func TestLogoutEndsSession(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp := env.post(t, "/auth/logout")
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err := env.client.Get(env.app.URL + "/api/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
