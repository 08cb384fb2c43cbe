package main

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgellow/launch-bridge/internal/config"
	"github.com/dgellow/launch-bridge/internal/introspect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func testToken(payload string) string {
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, BuildVersion+"\n", out)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	out, err := run(t, "", "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated default config at")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Example, string(data))

	_, err = run(t, "", "config", "init", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "", "config", "init", "--force", path)
	assert.NoError(t, err)
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.json")
	require.NoError(t, os.WriteFile(valid, []byte(config.Example), 0644))
	out, err := run(t, "", "config", "validate", valid)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Result: PASS")

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"version": "launch-bridge/v1"}`), 0644))
	out, err = run(t, "", "config", "validate", invalid)
	assert.Error(t, err)
	assert.Contains(t, out, "Result: FAIL")
}

func TestInspect(t *testing.T) {
	token := testToken(`{"user_id":"u1","exp":1700000000}`)

	t.Run("argument", func(t *testing.T) {
		out, err := run(t, "", "inspect", token)
		require.NoError(t, err)
		assert.Contains(t, out, "User ID: u1")
		assert.Contains(t, out, "Expiration: Tue, 14 Nov 2023 22:13:20 UTC")
		assert.Contains(t, out, "Audience: not set")
		assert.Contains(t, out, "Expired: true")
	})

	t.Run("stdin", func(t *testing.T) {
		out, err := run(t, token+"\n", "inspect", "-")
		require.NoError(t, err)
		assert.Contains(t, out, "User ID: u1")
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "", "inspect", "--json", token)
		require.NoError(t, err)
		assert.Contains(t, out, `"user_id": "u1"`)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := run(t, "", "inspect", "nodots")
		assert.ErrorIs(t, err, introspect.ErrMalformedToken)
	})

	t.Run("empty stdin", func(t *testing.T) {
		_, err := run(t, "", "inspect")
		assert.Error(t, err)
	})
}

func TestServeRequiresConfig(t *testing.T) {
	_, err := run(t, "", "serve")
	assert.ErrorContains(t, err, "config")
}

func TestUsersWithMemoryStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(config.Example), 0644))
	t.Setenv("LAUNCH_BRIDGE_SESSION_SECRET", strings.Repeat("s", 32))
	t.Setenv("LAUNCH_BRIDGE_CLIENT_ID", "client")
	t.Setenv("LAUNCH_BRIDGE_CLIENT_SECRET", "secret")
	t.Setenv("LAUNCH_BRIDGE_SIGNING_KEY", strings.Repeat("k", 32))

	out, err := run(t, "", "users", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "USER ID")
}
