package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
	"github.com/entrhq/browser-sidecar/pkg/config"
	"github.com/entrhq/browser-sidecar/pkg/logging"
)

func attachRequest() ConnectRequest {
	return ConnectRequest{
		Profile: config.ProfileConfig{CDPURL: "http://127.0.0.1:9222"},
		Browser: config.BrowserConfig{},
		Paths:   config.Paths{ProfilesRoot: "/tmp/profiles", AppLogDir: "/tmp/logs"},
	}
}

func newTestRegistry(drv driver.Driver) *SessionRegistry {
	return NewSessionRegistry(drv, testOptions(), logging.NewNop())
}

func TestEnsureContext_RequiresEndpointOrExecutable(t *testing.T) {
	drv := newFakeDriver()
	r := newTestRegistry(drv)

	_, err := r.EnsureContext(context.Background(), "work", ConnectRequest{})
	require.Error(t, err)

	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "cdp_url or executable_path")
	assert.Zero(t, drv.connectCount(), "nothing is attached or spawned")
	assert.False(t, r.Session("work").Connected())
}

func TestEnsureContext_AttachRegistersExistingTabs(t *testing.T) {
	drv := newFakeDriver()
	drv.conn.ctx.addExisting("https://one.example")
	drv.conn.ctx.addExisting("https://two.example")
	r := newTestRegistry(drv)

	s, err := r.EnsureContext(context.Background(), "work", attachRequest())
	require.NoError(t, err)

	status := s.Status()
	assert.True(t, status.Connected)
	assert.Equal(t, ModeAttached, status.Mode)
	assert.Equal(t, "http://127.0.0.1:9222", status.Endpoint)
	assert.Equal(t, 2, status.Tabs)
	assert.Equal(t, "t1", status.ActiveTargetID)

	// A live session is reused.
	_, err = r.EnsureContext(context.Background(), "work", attachRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, drv.connectCount())
}

func TestEnsureContext_OpensBlankTab(t *testing.T) {
	drv := newFakeDriver()
	r := newTestRegistry(drv)

	s, err := r.EnsureContext(context.Background(), "work", attachRequest())
	require.NoError(t, err)

	tabs := s.Tabs()
	require.Len(t, tabs, 1)
	assert.Equal(t, "about:blank", tabs[0].URL)
}

func TestEnsureContext_ConnectionFailures(t *testing.T) {
	t.Run("connect error", func(t *testing.T) {
		drv := newFakeDriver()
		drv.connectErr = errors.New("connection refused")
		r := newTestRegistry(drv)

		_, err := r.EnsureContext(context.Background(), "work", attachRequest())
		require.Error(t, err)
		assert.True(t, IsConnectionError(err))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("no context", func(t *testing.T) {
		drv := newFakeDriver()
		drv.conn.noContext = true
		r := newTestRegistry(drv)

		_, err := r.EnsureContext(context.Background(), "work", attachRequest())
		require.Error(t, err)
		assert.True(t, IsConnectionError(err))
		assert.Contains(t, err.Error(), "no browser context")
		assert.True(t, drv.conn.closed)
	})
}

func TestEnsureContext_ReconnectsAfterDisconnect(t *testing.T) {
	drv := newFakeDriver()
	r := newTestRegistry(drv)

	s, err := r.EnsureContext(context.Background(), "work", attachRequest())
	require.NoError(t, err)
	require.Equal(t, "t1", s.ActiveTargetID())

	drv.conn.disconnect()
	assert.False(t, s.Connected())
	assert.Empty(t, s.Tabs())

	drv.conn = newFakeConn()
	s, err = r.EnsureContext(context.Background(), "work", attachRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, drv.connectCount())
	assert.Equal(t, "t2", s.ActiveTargetID(), "ids keep increasing across reconnects")
}

func TestEnsureContext_FailedProbeReconnects(t *testing.T) {
	drv := newFakeDriver()
	r := newTestRegistry(drv)

	_, err := r.EnsureContext(context.Background(), "work", attachRequest())
	require.NoError(t, err)

	drv.conn.ctx.pagesErr = errors.New("target closed")
	drv.conn = newFakeConn()

	s, err := r.EnsureContext(context.Background(), "work", attachRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, drv.connectCount())
	assert.NotEmpty(t, s.Errors(0), "probe failure is recorded")
}

func TestEnsureContext_PrivateNetworkRoute(t *testing.T) {
	drv := newFakeDriver()
	r := newTestRegistry(drv)

	_, err := r.EnsureContext(context.Background(), "work", attachRequest())
	require.NoError(t, err)

	allow := drv.conn.ctx.allow
	require.NotNil(t, allow)
	assert.True(t, allow("https://example.com/"))
	assert.False(t, allow("http://192.168.1.1/admin"))
	assert.False(t, allow("http://localhost:8080/"))

	t.Run("not installed when allowed", func(t *testing.T) {
		drv := newFakeDriver()
		r := newTestRegistry(drv)
		req := attachRequest()
		req.Browser.AllowPrivateNetwork = true

		_, err := r.EnsureContext(context.Background(), "work", req)
		require.NoError(t, err)
		assert.Nil(t, drv.conn.ctx.allow)
	})
}

func TestEnsureContext_ReappliesOverrides(t *testing.T) {
	drv := newFakeDriver()
	r := newTestRegistry(drv)

	s, err := r.EnsureContext(context.Background(), "work", attachRequest())
	require.NoError(t, err)

	require.NoError(t, s.SetHeaders(map[string]string{"X-Trace": "1"}))
	require.NoError(t, s.SetCredentials(&Credentials{Username: "user", Password: "pass"}))
	require.NoError(t, s.SetTimezone("Europe/Berlin"))
	assert.Equal(t, "Basic dXNlcjpwYXNz", drv.conn.ctx.headers["Authorization"])

	drv.conn.disconnect()
	drv.conn = newFakeConn()
	existing := drv.conn.ctx.addExisting("https://example.com")

	_, err = r.EnsureContext(context.Background(), "work", attachRequest())
	require.NoError(t, err)

	assert.Equal(t, "1", drv.conn.ctx.headers["X-Trace"])
	assert.Equal(t, "Basic dXNlcjpwYXNz", drv.conn.ctx.headers["Authorization"])
	assert.Contains(t, existing.cdp, "Emulation.setTimezoneOverride")
}

func TestEnsureContext_NewTabGetsOverrides(t *testing.T) {
	drv := newFakeDriver()
	r := newTestRegistry(drv)

	s, err := r.EnsureContext(context.Background(), "work", attachRequest())
	require.NoError(t, err)
	require.NoError(t, s.SetColorScheme("dark"))

	tab := newFakeTab("https://example.com/new")
	drv.conn.ctx.onPage(tab)

	assert.Len(t, s.Tabs(), 2)
	require.Eventually(t, func() bool {
		tab.mu.Lock()
		defer tab.mu.Unlock()
		return len(tab.actions) == 1 && tab.actions[0] == "media dark"
	}, time.Second, 5*time.Millisecond)
}

func TestSessionRegistry_StopAndCloseAll(t *testing.T) {
	drv := newFakeDriver()
	r := newTestRegistry(drv)

	_, err := r.EnsureContext(context.Background(), "a", attachRequest())
	require.NoError(t, err)
	r.Session("idle")

	assert.Equal(t, []string{"a", "idle"}, r.Names())
	assert.False(t, r.Stop("missing"))

	closed := r.CloseAll(context.Background())
	assert.Equal(t, []string{"a"}, closed)
	assert.True(t, drv.conn.closed)

	s, ok := r.Lookup("a")
	require.True(t, ok)
	assert.False(t, s.Connected())
}

func TestWaitForEndpoint(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/version", r.URL.Path)
		if calls.Add(1) < 3 {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"Browser":"Chrome/120","webSocketDebuggerUrl":"ws://127.0.0.1/devtools/browser/abc"}`)
	}))
	defer srv.Close()

	ws, err := waitForEndpoint(context.Background(), srv.URL, make(chan struct{}), time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1/devtools/browser/abc", ws)
	assert.EqualValues(t, 3, calls.Load())
}

func TestWaitForEndpoint_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Browser":"Chrome/120"}`)
	}))
	defer srv.Close()

	t.Run("timeout", func(t *testing.T) {
		_, err := waitForEndpoint(context.Background(), srv.URL, make(chan struct{}), 100*time.Millisecond, 10*time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "webSocketDebuggerUrl")
	})

	t.Run("process exited", func(t *testing.T) {
		exited := make(chan struct{})
		close(exited)

		start := time.Now()
		_, err := waitForEndpoint(context.Background(), srv.URL, exited, 5*time.Second, 10*time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exited")
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestLaunchArgs(t *testing.T) {
	args := launchArgs(9333, "/data/work", config.ProfileConfig{Headless: true, ExtraArgs: []string{"--lang=en"}})

	assert.Equal(t, []string{
		"--remote-debugging-port=9333",
		"--remote-allow-origins=*",
		"--user-data-dir=/data/work",
		"--no-first-run",
		"--no-default-browser-check",
		"--headless=new",
		"--lang=en",
		"about:blank",
	}, args)

	assert.NotContains(t, launchArgs(1, "/d", config.ProfileConfig{}), "--headless=new")
}

func TestEnsureContext_LaunchFailureIsConnectionError(t *testing.T) {
	drv := newFakeDriver()
	r := newTestRegistry(drv)

	req := ConnectRequest{
		Profile: config.ProfileConfig{ExecutablePath: "/nonexistent/chrome"},
		Paths:   config.Paths{ProfilesRoot: t.TempDir()},
	}
	_, err := r.EnsureContext(context.Background(), "work", req)
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.Zero(t, drv.connectCount())
}
