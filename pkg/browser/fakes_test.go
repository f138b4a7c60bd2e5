package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
	"github.com/entrhq/browser-sidecar/pkg/logging"
)

var errNotFound = errors.New("element not found")

type fakeDriver struct {
	mu         sync.Mutex
	conn       *fakeConn
	connectErr error
	endpoints  []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{conn: newFakeConn()}
}

func (d *fakeDriver) Connect(_ context.Context, endpoint string, _ time.Duration) (driver.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints = append(d.endpoints, endpoint)
	if d.connectErr != nil {
		return nil, d.connectErr
	}
	return d.conn, nil
}

func (d *fakeDriver) Device(name string) (driver.DeviceProfile, bool) {
	if name == "Test Phone" {
		return driver.DeviceProfile{Name: name, Width: 390, Height: 844, DeviceScaleFactor: 3, Mobile: true, HasTouch: true}, true
	}
	return driver.DeviceProfile{}, false
}

func (d *fakeDriver) Close() error { return nil }

func (d *fakeDriver) connectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

type fakeConn struct {
	mu        sync.Mutex
	connected bool
	ctx       *fakeContext
	noContext bool
	onDisc    []func()
	closed    bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{connected: true, ctx: &fakeContext{headers: map[string]string{}}}
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) DefaultContext() driver.BrowserContext {
	if c.noContext {
		return nil
	}
	return c.ctx
}

func (c *fakeConn) OnDisconnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisc = append(c.onDisc, fn)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// disconnect simulates the browser going away.
func (c *fakeConn) disconnect() {
	c.mu.Lock()
	c.connected = false
	handlers := append([]func(){}, c.onDisc...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

type fakeContext struct {
	mu          sync.Mutex
	pages       []*fakeTab
	pagesErr    error
	onPage      func(driver.Tab)
	onClose     func()
	headers     map[string]string
	geo         *driver.Geolocation
	permissions []string
	offline     bool
	allow       func(string) bool
	cookies     []driver.Cookie
	tracing     bool
	traceSaved  string
}

func (c *fakeContext) Pages() ([]driver.Tab, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pagesErr != nil {
		return nil, c.pagesErr
	}
	out := make([]driver.Tab, 0, len(c.pages))
	for _, p := range c.pages {
		if !p.IsClosed() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *fakeContext) NewPage() (driver.Tab, error) {
	tab := newFakeTab("about:blank")
	c.mu.Lock()
	c.pages = append(c.pages, tab)
	c.mu.Unlock()
	return tab, nil
}

func (c *fakeContext) OnPage(fn func(driver.Tab)) { c.onPage = fn }
func (c *fakeContext) OnClose(fn func())          { c.onClose = fn }

func (c *fakeContext) SetExtraHTTPHeaders(headers map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers = headers
	return nil
}

func (c *fakeContext) SetGeolocation(geo *driver.Geolocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.geo = geo
	return nil
}

func (c *fakeContext) GrantPermissions(p []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permissions = append(c.permissions, p...)
	return nil
}

func (c *fakeContext) ClearPermissions() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permissions = nil
	return nil
}

func (c *fakeContext) SetOffline(offline bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offline = offline
	return nil
}

func (c *fakeContext) Cookies(...string) ([]driver.Cookie, error) { return c.cookies, nil }

func (c *fakeContext) AddCookies(cookies []driver.Cookie) error {
	c.cookies = append(c.cookies, cookies...)
	return nil
}

func (c *fakeContext) ClearCookies() error {
	c.cookies = nil
	return nil
}

func (c *fakeContext) RouteAll(allow func(string) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allow = allow
	return nil
}

func (c *fakeContext) StartTracing(driver.TraceOptions) error {
	c.tracing = true
	return nil
}

func (c *fakeContext) StopTracing(path string) error {
	c.tracing = false
	c.traceSaved = path
	return nil
}

func (c *fakeContext) Close() error { return nil }

// addExisting adds a tab that was open before attach.
func (c *fakeContext) addExisting(url string) *fakeTab {
	tab := newFakeTab(url)
	c.mu.Lock()
	c.pages = append(c.pages, tab)
	c.mu.Unlock()
	return tab
}

// fakeTab implements driver.Tab. Selectors listed in ok resolve; all
// others fail. Role and label queries fail unless roleOK/labelOK are set.
type fakeTab struct {
	mu       sync.Mutex
	url      string
	title    string
	closed   bool
	listener driver.TabListener

	ok      map[string]bool
	roleOK  bool
	labelOK bool
	domOK   bool
	actions []string
	keys    []string
	cdp     []string
	evals   int

	indicatorChecks  int
	indicatorVisible int // checks that still report a spinner
	onIndicatorCheck func(n int)
	candidates       []candidate
	dom              map[int]string // scratch index -> ref attribute
	content          string
	links            []Link

	gotoStatus int
	storage    map[string]string
}

func newFakeTab(url string) *fakeTab {
	return &fakeTab{url: url, title: "Title of " + url, ok: map[string]bool{}, dom: map[int]string{}, gotoStatus: 200}
}

func (t *fakeTab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

func (t *fakeTab) Title() (string, error) { return t.title, nil }

func (t *fakeTab) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTab) Goto(url string, _ driver.GotoOptions) (*driver.NavigationResponse, error) {
	t.mu.Lock()
	t.url = url
	t.mu.Unlock()
	return &driver.NavigationResponse{URL: url, Status: t.gotoStatus, ContentType: "text/html"}, nil
}

func (t *fakeTab) BringToFront() error { return nil }

func (t *fakeTab) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTab) setURL(url string) {
	t.mu.Lock()
	t.url = url
	t.mu.Unlock()
}

func (t *fakeTab) record(action string) {
	t.mu.Lock()
	t.actions = append(t.actions, action)
	t.mu.Unlock()
}

func (t *fakeTab) evalCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evals
}

func (t *fakeTab) Evaluate(expr string, arg interface{}) (interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evals++

	encode := func(v interface{}) (interface{}, error) {
		b, err := json.Marshal(v)
		return string(b), err
	}

	switch expr {
	case loadingIndicatorScript:
		t.indicatorChecks++
		if t.onIndicatorCheck != nil {
			t.onIndicatorCheck(t.indicatorChecks)
		}
		return encode(t.indicatorChecks <= t.indicatorVisible)
	case domQuietScript:
		return encode(map[string]bool{"quiet": true})
	case collectScript:
		t.dom = map[int]string{}
		for _, c := range t.candidates {
			t.dom[c.Index] = ""
		}
		return encode(t.candidates)
	case tagScript:
		refs := arg.(map[string]interface{})["refs"].(map[string]string)
		tagged := 0
		for idx := range t.dom {
			if ref, ok := refs[strconv.Itoa(idx)]; ok {
				t.dom[idx] = ref
				tagged++
			} else {
				delete(t.dom, idx)
			}
		}
		return encode(tagged)
	case pageContentScript:
		return encode(map[string]interface{}{"content": t.content, "truncated": false, "links": t.links})
	case domActScript:
		return encode(map[string]bool{"ok": t.domOK})
	case storageScript:
		opts := arg.(map[string]interface{})
		if t.storage == nil {
			t.storage = map[string]string{}
		}
		switch opts["op"] {
		case StorageSet:
			t.storage[opts["key"].(string)] = opts["value"].(string)
		case StorageClear:
			t.storage = map[string]string{}
		}
		return encode(t.storage)
	case scrollToPointScript:
		p := arg.(map[string]interface{})
		return encode(map[string]float64{"x": p["x"].(float64), "y": p["y"].(float64)})
	}
	return encode(map[string]string{"expr": expr})
}

// taggedRefs returns the ref attributes present in the fake DOM.
func (t *fakeTab) taggedRefs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, ref := range t.dom {
		if ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

func (t *fakeTab) Locator(selector string) driver.Locator {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &fakeLocator{tab: t, desc: selector, found: t.ok[selector]}
}

func (t *fakeTab) ByRole(role, name string) driver.Locator {
	return &fakeLocator{tab: t, desc: fmt.Sprintf("role=%s[name=%q]", role, name), found: t.roleOK}
}

func (t *fakeTab) ByLabel(label string) driver.Locator {
	return &fakeLocator{tab: t, desc: "label=" + label, found: t.labelOK}
}

func (t *fakeTab) MouseClick(x, y float64) error {
	t.record(fmt.Sprintf("mouse %.0f,%.0f", x, y))
	return nil
}

func (t *fakeTab) MouseWheel(dx, dy float64) error {
	t.record(fmt.Sprintf("wheel %.0f,%.0f", dx, dy))
	return nil
}

func (t *fakeTab) KeyPress(key string) error {
	t.mu.Lock()
	t.keys = append(t.keys, key)
	t.mu.Unlock()
	return nil
}

func (t *fakeTab) WaitForSelector(selector string, _ time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ok[selector] {
		return errNotFound
	}
	return nil
}

func (t *fakeTab) Screenshot(driver.ScreenshotOptions) ([]byte, error) { return []byte("png"), nil }
func (t *fakeTab) PDF(driver.PDFOptions) ([]byte, error)               { return []byte("%PDF"), nil }
func (t *fakeTab) Viewport() (int, int)                                { return 1280, 720 }
func (t *fakeTab) SetViewport(int, int) error                          { return nil }
func (t *fakeTab) EmulateMedia(scheme string) error {
	t.record("media " + scheme)
	return nil
}

func (t *fakeTab) CDP(method string, _ map[string]interface{}) (interface{}, error) {
	t.mu.Lock()
	t.cdp = append(t.cdp, method)
	t.mu.Unlock()
	return map[string]interface{}{}, nil
}

func (t *fakeTab) Opener() driver.Tab { return nil }

func (t *fakeTab) Subscribe(l driver.TabListener) {
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()
}

func (t *fakeTab) events() driver.TabListener {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listener
}

type fakeLocator struct {
	tab   *fakeTab
	desc  string
	found bool
}

func (l *fakeLocator) do(action string) error {
	if !l.found {
		return fmt.Errorf("%s: %w", l.desc, errNotFound)
	}
	l.tab.record(action + " " + l.desc)
	return nil
}

func (l *fakeLocator) Click(time.Duration) error { return l.do("click") }
func (l *fakeLocator) Fill(v string, _ time.Duration) error {
	return l.do("fill(" + v + ")")
}
func (l *fakeLocator) Press(key string, _ time.Duration) error { return l.do("press(" + key + ")") }
func (l *fakeLocator) Hover(time.Duration) error               { return l.do("hover") }
func (l *fakeLocator) SelectOption(values []string, _ time.Duration) ([]string, error) {
	return values, l.do("select")
}
func (l *fakeLocator) DragTo(target driver.Locator, _ time.Duration) error {
	return l.do("drag to " + target.(*fakeLocator).desc)
}
func (l *fakeLocator) ScrollIntoView(time.Duration) error { return l.do("scroll") }
func (l *fakeLocator) Screenshot(time.Duration) ([]byte, error) {
	return []byte("png"), l.do("screenshot")
}

// testOptions keeps readiness phases short.
func testOptions() Options {
	opts := DefaultOptions()
	opts.Readiness = ReadinessOptions{
		IndicatorPoll: 5 * time.Millisecond,
		IndicatorMax:  50 * time.Millisecond,
		IdleWindow:    10 * time.Millisecond,
		IdleMax:       100 * time.Millisecond,
		IdlePoll:      2 * time.Millisecond,
		QuietWindow:   5 * time.Millisecond,
		QuietMax:      50 * time.Millisecond,
	}
	return opts
}

// newTestSession returns a session attached to the fake driver with one tab.
func newTestSession() (*ProfileSession, *fakeConn, *fakeTab) {
	conn := newFakeConn()
	s := newProfileSession("test", testOptions(), logging.NewNop())
	tab := newFakeTab("https://example.com/")
	conn.ctx.pages = append(conn.ctx.pages, tab)
	s.attach(conn, conn.ctx, ModeAttached, "ws://fake", nil)
	s.RegisterTab(tab)
	return s, conn, tab
}
