package actions

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

// MockDriver mocks the automation driver's entry points.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Connect(ctx context.Context, endpoint string, timeout time.Duration) (driver.Connection, error) {
	args := m.Called(ctx, endpoint, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(driver.Connection), args.Error(1)
}

func (m *MockDriver) Device(name string) (driver.DeviceProfile, bool) {
	args := m.Called(name)
	return args.Get(0).(driver.DeviceProfile), args.Bool(1)
}

func (m *MockDriver) Close() error {
	return m.Called().Error(0)
}

type stubConn struct {
	ctx    *stubContext
	closed bool
}

func (c *stubConn) IsConnected() bool                     { return !c.closed }
func (c *stubConn) DefaultContext() driver.BrowserContext { return c.ctx }
func (c *stubConn) OnDisconnected(func())                 {}
func (c *stubConn) Close() error {
	c.closed = true
	return nil
}

type stubContext struct {
	mu       sync.Mutex
	pages    []driver.Tab
	headers  map[string]string
	cookies  []driver.Cookie
	offline  bool
	geo      *driver.Geolocation
	tracing  bool
	traceOut string
}

func (c *stubContext) Pages() ([]driver.Tab, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]driver.Tab(nil), c.pages...), nil
}

func (c *stubContext) NewPage() (driver.Tab, error) {
	tab := &stubTab{url: "about:blank"}
	c.mu.Lock()
	c.pages = append(c.pages, tab)
	c.mu.Unlock()
	return tab, nil
}

func (c *stubContext) OnPage(func(driver.Tab)) {}
func (c *stubContext) OnClose(func())          {}

func (c *stubContext) SetExtraHTTPHeaders(h map[string]string) error {
	c.headers = h
	return nil
}

func (c *stubContext) SetGeolocation(geo *driver.Geolocation) error {
	c.geo = geo
	return nil
}

func (c *stubContext) GrantPermissions([]string) error { return nil }
func (c *stubContext) ClearPermissions() error         { return nil }

func (c *stubContext) SetOffline(offline bool) error {
	c.offline = offline
	return nil
}

func (c *stubContext) Cookies(...string) ([]driver.Cookie, error) { return c.cookies, nil }

func (c *stubContext) AddCookies(cookies []driver.Cookie) error {
	c.cookies = append(c.cookies, cookies...)
	return nil
}

func (c *stubContext) ClearCookies() error {
	c.cookies = nil
	return nil
}

func (c *stubContext) RouteAll(func(string) bool) error { return nil }

func (c *stubContext) StartTracing(driver.TraceOptions) error {
	c.tracing = true
	return nil
}

func (c *stubContext) StopTracing(path string) error {
	c.tracing = false
	c.traceOut = path
	return nil
}

func (c *stubContext) Close() error { return nil }

// stubTab answers every script with evalResult (JSON encoded) and records
// the last expression.
type stubTab struct {
	url        string
	closed     bool
	evalResult interface{}
	lastExpr   string
	media      string
}

func (t *stubTab) URL() string            { return t.url }
func (t *stubTab) Title() (string, error) { return "Stub", nil }
func (t *stubTab) IsClosed() bool         { return t.closed }

func (t *stubTab) Goto(url string, _ driver.GotoOptions) (*driver.NavigationResponse, error) {
	t.url = url
	return &driver.NavigationResponse{URL: url, Status: 200, ContentType: "text/html"}, nil
}

func (t *stubTab) BringToFront() error { return nil }

func (t *stubTab) Close() error {
	t.closed = true
	return nil
}

func (t *stubTab) Evaluate(expr string, _ interface{}) (interface{}, error) {
	t.lastExpr = expr
	if t.evalResult == nil {
		return "{}", nil
	}
	if raw, ok := t.evalResult.(string); ok {
		return raw, nil
	}
	b, err := json.Marshal(t.evalResult)
	return string(b), err
}

func (t *stubTab) Locator(string) driver.Locator               { return stubLocator{} }
func (t *stubTab) ByRole(string, string) driver.Locator        { return stubLocator{} }
func (t *stubTab) ByLabel(string) driver.Locator               { return stubLocator{} }
func (t *stubTab) MouseClick(float64, float64) error           { return nil }
func (t *stubTab) MouseWheel(float64, float64) error           { return nil }
func (t *stubTab) KeyPress(string) error                       { return nil }
func (t *stubTab) WaitForSelector(string, time.Duration) error { return nil }

func (t *stubTab) Screenshot(driver.ScreenshotOptions) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (t *stubTab) PDF(driver.PDFOptions) ([]byte, error) { return []byte("%PDF-1.4 stub"), nil }
func (t *stubTab) Viewport() (int, int)                  { return 1280, 720 }
func (t *stubTab) SetViewport(int, int) error            { return nil }

func (t *stubTab) EmulateMedia(scheme string) error {
	t.media = scheme
	return nil
}

func (t *stubTab) CDP(string, map[string]interface{}) (interface{}, error) { return nil, nil }
func (t *stubTab) Opener() driver.Tab                                      { return nil }
func (t *stubTab) Subscribe(driver.TabListener)                            {}

type stubLocator struct{}

func (stubLocator) Click(time.Duration) error                  { return nil }
func (stubLocator) Fill(string, time.Duration) error           { return nil }
func (stubLocator) Press(string, time.Duration) error          { return nil }
func (stubLocator) Hover(time.Duration) error                  { return nil }
func (stubLocator) DragTo(driver.Locator, time.Duration) error { return nil }
func (stubLocator) ScrollIntoView(time.Duration) error         { return nil }
func (stubLocator) Screenshot(time.Duration) ([]byte, error)   { return []byte("\x89PNG"), nil }
func (stubLocator) SelectOption(v []string, _ time.Duration) ([]string, error) {
	return v, nil
}
