package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browser-sidecar/pkg/browser"
	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
	"github.com/entrhq/browser-sidecar/pkg/config"
)

const searchPage = `<!doctype html>
<html><head><title>Search</title></head>
<body>
  <label for="q">Query</label>
  <input id="q" name="q" type="text">
  <button id="go" onclick="document.title = 'clicked:' + document.getElementById('q').value">Go</button>
  <a href="/about">About</a>
  <a id="skip" href="#main" style="position:absolute;left:-9999px">Skip to content</a>
</body></html>`

func TestIntegration_LaunchNavigateAct(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	chrome := os.Getenv("BROWSER_SIDECAR_CHROME")
	if chrome == "" {
		t.Skip("BROWSER_SIDECAR_CHROME is not set")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, searchPage)
	}))
	defer srv.Close()

	ctx := context.Background()
	drv := driver.NewPlaywright(false)
	defer drv.Close()

	registry := browser.NewSessionRegistry(drv, browser.DefaultOptions(), nil)
	defer registry.CloseAll(ctx)
	svc := NewService(registry, nil)

	cfg := config.BrowserConfig{
		Profiles:            map[string]config.ProfileConfig{"it": {ExecutablePath: chrome, Headless: true}},
		AllowPrivateNetwork: true,
		EvaluateEnabled:     true,
	}
	paths := config.Paths{ProfilesRoot: t.TempDir(), AppLogDir: t.TempDir()}

	run := func(action string, params interface{}) Result {
		t.Helper()
		raw, err := json.Marshal(params)
		require.NoError(t, err)
		res, err := svc.Handle(ctx, Request{Action: action, Params: raw}, cfg, paths)
		require.NoError(t, err, action)
		return res
	}

	nav := run(ActionNavigate, map[string]string{"url": srv.URL}).Data.(*browser.NavigateResult)
	assert.Equal(t, http.StatusOK, nav.Status)
	assert.Equal(t, "Search", nav.Title)
	assert.Contains(t, nav.Content, "Query")
	require.NotEmpty(t, nav.Links)

	snap := run(ActionSnapshot, map[string]string{"mode": "full"}).Data.(*browser.SnapshotResult)
	input, ok := lo.Find(snap.Refs, func(r browser.SnapshotRef) bool { return r.Tag == "input" })
	require.True(t, ok, "input is referenced")
	button, ok := lo.Find(snap.Refs, func(r browser.SnapshotRef) bool { return r.Tag == "button" })
	require.True(t, ok, "button is referenced")
	assert.Equal(t, "#q", input.Selector)
	assert.False(t, lo.ContainsBy(snap.Refs, func(r browser.SnapshotRef) bool { return r.Name == "Skip to content" }),
		"elements parked off-screen are not referenced")

	run(ActionAct, map[string]string{"kind": "type", "ref": input.Ref, "text": "golang"})
	click := run(ActionAct, map[string]string{"kind": "click", "ref": button.Ref})
	assert.Equal(t, browser.MethodSelector, click.Data.(browser.ActResult).Method)

	title := run(ActionEvaluate, map[string]string{"expression": "document.title"}).Data.(map[string]interface{})
	assert.Equal(t, "clicked:golang", title["result"])

	shot := run(ActionScreenshot, map[string]interface{}{"full_page": true}).Data.(map[string]interface{})
	assert.FileExists(t, shot["path"].(string))
}
