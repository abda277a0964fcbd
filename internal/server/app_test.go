package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snoreguard/panel/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Secret = testSecret
	cfg.DatabaseURL = ":memory:"
	cfg.Host = "127.0.0.1"
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func postJSON(t *testing.T, app *App, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.http.Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Secret = "short"

	_, err := NewApp(context.Background(), cfg, WithLogOutput(io.Discard))

	assert.ErrorContains(t, err, "invalid config")
}

func TestNewApp_ServesAuthRoutes(t *testing.T) {
	// Arrange
	var logs bytes.Buffer
	app, err := NewApp(context.Background(), testConfig(t), WithLogOutput(&logs))
	require.NoError(t, err)
	t.Cleanup(app.panel.Close)

	// Act
	reg := postJSON(t, app, "/api/auth/register", map[string]any{"username": "alice", "email": "alice@example.com", "password": "secret1"})
	login := postJSON(t, app, "/api/auth/login", map[string]any{"username": "alice", "password": "secret1"})

	// Assert
	assert.Equal(t, http.StatusCreated, reg.StatusCode)
	assert.Equal(t, http.StatusOK, login.StatusCode)
	assert.NotEmpty(t, login.Header.Get("X-Request-ID"))
	assert.Contains(t, logs.String(), "/api/auth/login", "access log")
	assert.NotContains(t, logs.String(), "secret1")
}

func TestNewApp_DeviceRoutesOnlyWithUpstream(t *testing.T) {
	without, err := NewApp(context.Background(), testConfig(t), WithLogOutput(io.Discard))
	require.NoError(t, err)
	t.Cleanup(without.panel.Close)

	resp, err := without.http.Test(httptest.NewRequest(http.MethodGet, "/api/device/status", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cfg := testConfig(t)
	cfg.DeviceUpstream = "http://127.0.0.1:1"
	with, err := NewApp(context.Background(), cfg, WithLogOutput(io.Discard))
	require.NoError(t, err)
	t.Cleanup(with.panel.Close)

	resp, err = with.http.Test(httptest.NewRequest(http.MethodGet, "/api/device/status", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, ok := with.panel.Endpoints.Lookup(http.MethodPost, "/api/device/pump/:action")
	assert.True(t, ok)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = freePort(t)

	app, err := NewApp(context.Background(), cfg, WithLogOutput(io.Discard))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", cfg.Addr(), 100*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
