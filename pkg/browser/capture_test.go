package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

func TestScreenshotRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ScreenshotRequest
		format  string
		wantErr string
	}{
		{name: "defaults to png", req: ScreenshotRequest{}, format: "png"},
		{name: "jpg alias", req: ScreenshotRequest{Format: "JPG", Quality: 80}, format: "jpeg"},
		{name: "unknown format", req: ScreenshotRequest{Format: "gif"}, wantErr: "png or jpeg"},
		{name: "quality range", req: ScreenshotRequest{Format: "jpeg", Quality: 101}, wantErr: "between 0 and 100"},
		{name: "quality needs jpeg", req: ScreenshotRequest{Quality: 50}, wantErr: "only applies to jpeg"},
		{name: "full page element", req: ScreenshotRequest{Ref: "e1", FullPage: true}, wantErr: "full_page cannot be combined"},
		{name: "element jpeg", req: ScreenshotRequest{Selector: "#a", Format: "jpeg"}, wantErr: "always png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.format, tt.req.Format)
		})
	}
}

func TestScreenshot_Element(t *testing.T) {
	s, _, tab := newTestSession()
	s.SetRefs("t1", RefTable{"e1": {Ref: "e1", Selector: "#gone", Fallbacks: []string{`[data-sidecar-ref="e1"]`}}})
	tab.ok[`[data-sidecar-ref="e1"]`] = true

	id, data, err := s.Screenshot("", ScreenshotRequest{Ref: "e1", Format: "png"})
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
	assert.Equal(t, []byte("png"), data)
	assert.Equal(t, []string{`screenshot [data-sidecar-ref="e1"]`}, tab.actions)

	_, _, err = s.Screenshot("", ScreenshotRequest{Ref: "e9", Format: "png"})
	assert.ErrorIs(t, err, ErrUnknownReference)

	_, _, err = s.Screenshot("", ScreenshotRequest{Selector: "#missing", Format: "png"})
	var exhausted *ActionExhaustionError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 1)
}

func TestPDFRequest_Validate(t *testing.T) {
	req := PDFRequest{}
	require.NoError(t, req.Validate())
	assert.Equal(t, "A4", req.Format)

	req = PDFRequest{Format: "letter"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "Letter", req.Format)

	req = PDFRequest{Format: "B5"}
	assert.True(t, IsValidationError(req.Validate()))
}

func TestStorage(t *testing.T) {
	s, _, _ := newTestSession()
	value := "dark"

	req := StorageRequest{Key: "theme", Value: &value}
	require.NoError(t, req.Validate(StorageSet))
	assert.Equal(t, "local", req.Kind)

	_, entries, err := s.Storage("", StorageSet, req)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"theme": "dark"}, entries)

	_, entries, err = s.Storage("", StorageClear, StorageRequest{Kind: "local"})
	require.NoError(t, err)
	assert.Empty(t, entries)

	bad := StorageRequest{Kind: "indexeddb"}
	assert.Error(t, bad.Validate(StorageGet))
	missing := StorageRequest{Key: "k"}
	assert.ErrorContains(t, missing.Validate(StorageSet), "requires value")
}

func TestCookiesAndTracing(t *testing.T) {
	s, conn, _ := newTestSession()

	err := s.AddCookies([]driver.Cookie{{Name: "sid"}})
	assert.ErrorContains(t, err, "url or domain")

	require.NoError(t, s.AddCookies([]driver.Cookie{{Name: "sid", Value: "1", Domain: "example.com"}}))
	cookies, err := s.Cookies(nil)
	require.NoError(t, err)
	assert.Len(t, cookies, 1)

	require.NoError(t, s.ClearCookies())
	cookies, err = s.Cookies(nil)
	require.NoError(t, err)
	assert.NotNil(t, cookies)
	assert.Empty(t, cookies)

	assert.ErrorContains(t, s.StopTrace("/tmp/t.zip"), "not active")
	require.NoError(t, s.StartTrace(true, false))
	assert.ErrorContains(t, s.StartTrace(true, false), "already started")
	assert.True(t, conn.ctx.tracing)

	require.NoError(t, s.StopTrace("/tmp/t.zip"))
	assert.Equal(t, "/tmp/t.zip", conn.ctx.traceSaved)
	assert.False(t, s.Tracing())
}
