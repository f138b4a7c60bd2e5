package driver

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Playwright implements Driver on top of playwright-go. The Playwright
// runtime is started lazily on first use and shared by every connection.
type Playwright struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	skipInstall bool

	tabsMu sync.Mutex
	tabs   map[playwright.Page]*pwTab
}

// NewPlaywright creates the playwright-go driver. When skipInstall is set the
// driver binaries must already be present on disk.
func NewPlaywright(skipInstall bool) *Playwright {
	return &Playwright{
		skipInstall: skipInstall,
		tabs:        make(map[playwright.Page]*pwTab),
	}
}

func (d *Playwright) runtime() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pw != nil {
		return d.pw, nil
	}

	// Stdout is the protocol channel, keep driver chatter off it.
	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}

	if !d.skipInstall {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright driver: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	d.pw = pw
	return pw, nil
}

// Connect attaches to a browser over CDP.
func (d *Playwright) Connect(ctx context.Context, endpoint string, timeout time.Duration) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := d.runtime()
	if err != nil {
		return nil, err
	}

	browser, err := pw.Chromium.ConnectOverCDP(endpoint, playwright.BrowserTypeConnectOverCDPOptions{
		Timeout: toMillis(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect over CDP to %s: %w", endpoint, err)
	}
	return &pwConnection{driver: d, browser: browser}, nil
}

// Device looks up a playwright device descriptor, case-insensitively.
func (d *Playwright) Device(name string) (DeviceProfile, bool) {
	pw, err := d.runtime()
	if err != nil {
		return DeviceProfile{}, false
	}

	for key, desc := range pw.Devices {
		if !strings.EqualFold(key, strings.TrimSpace(name)) || desc == nil {
			continue
		}
		profile := DeviceProfile{
			Name:              key,
			UserAgent:         desc.UserAgent,
			DeviceScaleFactor: desc.DeviceScaleFactor,
			Mobile:            desc.IsMobile,
			HasTouch:          desc.HasTouch,
		}
		if desc.Viewport != nil {
			profile.Width = desc.Viewport.Width
			profile.Height = desc.Viewport.Height
		}
		return profile, true
	}
	return DeviceProfile{}, false
}

// Close stops the Playwright runtime.
func (d *Playwright) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	return err
}

// tab returns the stable wrapper for a page so wrappers compare equal.
func (d *Playwright) tab(page playwright.Page) *pwTab {
	if page == nil {
		return nil
	}
	d.tabsMu.Lock()
	defer d.tabsMu.Unlock()

	if t, ok := d.tabs[page]; ok {
		return t
	}
	t := &pwTab{driver: d, page: page}
	d.tabs[page] = t
	return t
}

func (d *Playwright) forget(page playwright.Page) {
	d.tabsMu.Lock()
	defer d.tabsMu.Unlock()
	delete(d.tabs, page)
}

type pwConnection struct {
	driver  *Playwright
	browser playwright.Browser
}

func (c *pwConnection) IsConnected() bool {
	return c.browser.IsConnected()
}

func (c *pwConnection) DefaultContext() BrowserContext {
	contexts := c.browser.Contexts()
	if len(contexts) == 0 {
		return nil
	}
	return &pwContext{driver: c.driver, ctx: contexts[0]}
}

func (c *pwConnection) OnDisconnected(fn func()) {
	c.browser.OnDisconnected(func(playwright.Browser) { fn() })
}

func (c *pwConnection) Close() error {
	return c.browser.Close()
}

type pwContext struct {
	driver *Playwright
	ctx    playwright.BrowserContext
}

func (c *pwContext) Pages() (tabs []Tab, err error) {
	// A context torn down underneath the driver can panic on access.
	defer func() {
		if r := recover(); r != nil {
			tabs, err = nil, fmt.Errorf("context unavailable: %v", r)
		}
	}()

	pages := c.ctx.Pages()
	tabs = make([]Tab, 0, len(pages))
	for _, page := range pages {
		tabs = append(tabs, c.driver.tab(page))
	}
	return tabs, nil
}

func (c *pwContext) NewPage() (Tab, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, err
	}
	return c.driver.tab(page), nil
}

func (c *pwContext) OnPage(fn func(Tab)) {
	c.ctx.OnPage(func(page playwright.Page) { fn(c.driver.tab(page)) })
}

func (c *pwContext) OnClose(fn func()) {
	c.ctx.OnClose(func(playwright.BrowserContext) { fn() })
}

func (c *pwContext) SetExtraHTTPHeaders(headers map[string]string) error {
	return c.ctx.SetExtraHTTPHeaders(headers)
}

func (c *pwContext) SetGeolocation(geo *Geolocation) error {
	if geo == nil {
		return c.ctx.SetGeolocation(nil)
	}
	return c.ctx.SetGeolocation(&playwright.Geolocation{
		Latitude:  geo.Latitude,
		Longitude: geo.Longitude,
		Accuracy:  geo.Accuracy,
	})
}

func (c *pwContext) GrantPermissions(permissions []string) error {
	return c.ctx.GrantPermissions(permissions)
}

func (c *pwContext) ClearPermissions() error {
	return c.ctx.ClearPermissions()
}

func (c *pwContext) SetOffline(offline bool) error {
	return c.ctx.SetOffline(offline)
}

func (c *pwContext) Cookies(urls ...string) ([]Cookie, error) {
	raw, err := c.ctx.Cookies(urls...)
	if err != nil {
		return nil, err
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, rc := range raw {
		cookie := Cookie{
			Name:     rc.Name,
			Value:    rc.Value,
			Domain:   rc.Domain,
			Path:     rc.Path,
			Expires:  rc.Expires,
			HTTPOnly: rc.HttpOnly,
			Secure:   rc.Secure,
		}
		if rc.SameSite != nil {
			cookie.SameSite = string(*rc.SameSite)
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func (c *pwContext) AddCookies(cookies []Cookie) error {
	optional := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, cookie := range cookies {
		oc := playwright.OptionalCookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			HttpOnly: playwright.Bool(cookie.HTTPOnly),
			Secure:   playwright.Bool(cookie.Secure),
		}
		if cookie.URL != "" {
			oc.URL = playwright.String(cookie.URL)
		}
		if cookie.Domain != "" {
			oc.Domain = playwright.String(cookie.Domain)
		}
		if cookie.Path != "" {
			oc.Path = playwright.String(cookie.Path)
		}
		if cookie.Expires != 0 {
			oc.Expires = playwright.Float(cookie.Expires)
		}
		if cookie.SameSite != "" {
			sameSite := playwright.SameSiteAttribute(cookie.SameSite)
			oc.SameSite = &sameSite
		}
		optional = append(optional, oc)
	}
	return c.ctx.AddCookies(optional)
}

func (c *pwContext) ClearCookies() error {
	return c.ctx.ClearCookies()
}

func (c *pwContext) RouteAll(allow func(url string) bool) error {
	return c.ctx.Route("**/*", func(route playwright.Route) {
		if allow(route.Request().URL()) {
			_ = route.Continue()
			return
		}
		_ = route.Abort("blockedbyclient")
	})
}

func (c *pwContext) StartTracing(opts TraceOptions) error {
	start := playwright.TracingStartOptions{
		Screenshots: playwright.Bool(opts.Screenshots),
		Snapshots:   playwright.Bool(opts.Snapshots),
	}
	if opts.Name != "" {
		start.Name = playwright.String(opts.Name)
	}
	return c.ctx.Tracing().Start(start)
}

func (c *pwContext) StopTracing(path string) error {
	return c.ctx.Tracing().Stop(path)
}

func (c *pwContext) Close() error {
	return c.ctx.Close()
}

type pwTab struct {
	driver *Playwright
	page   playwright.Page

	cdpMu sync.Mutex
	cdp   playwright.CDPSession
}

func (t *pwTab) URL() string {
	return t.page.URL()
}

func (t *pwTab) Title() (string, error) {
	return t.page.Title()
}

func (t *pwTab) IsClosed() bool {
	return t.page.IsClosed()
}

func (t *pwTab) Goto(url string, opts GotoOptions) (*NavigationResponse, error) {
	gotoOpts := playwright.PageGotoOptions{
		WaitUntil: waitUntilState(opts.WaitUntil),
	}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = toMillis(opts.Timeout)
	}

	resp, err := t.page.Goto(url, gotoOpts)
	if err != nil {
		return nil, err
	}

	nav := &NavigationResponse{URL: t.page.URL()}
	if resp != nil {
		nav.URL = resp.URL()
		nav.Status = resp.Status()
		nav.ContentType = resp.Headers()["content-type"]
	}
	return nav, nil
}

func (t *pwTab) BringToFront() error {
	return t.page.BringToFront()
}

func (t *pwTab) Close() error {
	return t.page.Close()
}

func (t *pwTab) Evaluate(expression string, arg interface{}) (interface{}, error) {
	if arg == nil {
		return t.page.Evaluate(expression)
	}
	return t.page.Evaluate(expression, arg)
}

func (t *pwTab) Locator(selector string) Locator {
	return &pwLocator{loc: t.page.Locator(selector).First()}
}

func (t *pwTab) ByRole(role, name string) Locator {
	opts := playwright.PageGetByRoleOptions{}
	if name != "" {
		opts.Name = name
	}
	return &pwLocator{loc: t.page.GetByRole(playwright.AriaRole(role), opts).First()}
}

func (t *pwTab) ByLabel(label string) Locator {
	return &pwLocator{loc: t.page.GetByLabel(label).First()}
}

func (t *pwTab) MouseClick(x, y float64) error {
	return t.page.Mouse().Click(x, y)
}

func (t *pwTab) MouseWheel(dx, dy float64) error {
	return t.page.Mouse().Wheel(dx, dy)
}

func (t *pwTab) KeyPress(key string) error {
	return t.page.Keyboard().Press(key)
}

func (t *pwTab) WaitForSelector(selector string, timeout time.Duration) error {
	_, err := t.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: toMillis(timeout),
	})
	return err
}

func (t *pwTab) Screenshot(opts ScreenshotOptions) ([]byte, error) {
	shot := playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(opts.FullPage),
		Type:     playwright.ScreenshotTypePng,
	}
	if strings.EqualFold(opts.Format, "jpeg") || strings.EqualFold(opts.Format, "jpg") {
		shot.Type = playwright.ScreenshotTypeJpeg
		if opts.Quality > 0 {
			shot.Quality = playwright.Int(opts.Quality)
		}
	}
	return t.page.Screenshot(shot)
}

func (t *pwTab) PDF(opts PDFOptions) ([]byte, error) {
	pdf := playwright.PagePdfOptions{
		Landscape:       playwright.Bool(opts.Landscape),
		PrintBackground: playwright.Bool(opts.PrintBackground),
	}
	if opts.Format != "" {
		pdf.Format = playwright.String(opts.Format)
	}
	return t.page.PDF(pdf)
}

func (t *pwTab) Viewport() (int, int) {
	size := t.page.ViewportSize()
	if size == nil {
		return 0, 0
	}
	return size.Width, size.Height
}

func (t *pwTab) SetViewport(width, height int) error {
	return t.page.SetViewportSize(width, height)
}

func (t *pwTab) EmulateMedia(colorScheme string) error {
	var scheme *playwright.ColorScheme
	switch strings.ToLower(colorScheme) {
	case "dark":
		scheme = playwright.ColorSchemeDark
	case "light":
		scheme = playwright.ColorSchemeLight
	case "no-preference":
		scheme = playwright.ColorSchemeNoPreference
	default:
		scheme = playwright.ColorSchemeNoOverride
	}
	return t.page.EmulateMedia(playwright.PageEmulateMediaOptions{ColorScheme: scheme})
}

// CDP reuses one session per tab; emulation overrides live as long as it does.
func (t *pwTab) CDP(method string, params map[string]interface{}) (interface{}, error) {
	t.cdpMu.Lock()
	defer t.cdpMu.Unlock()

	if t.cdp == nil {
		session, err := t.page.Context().NewCDPSession(t.page)
		if err != nil {
			return nil, fmt.Errorf("failed to open CDP session: %w", err)
		}
		t.cdp = session
	}
	return t.cdp.Send(method, params)
}

func (t *pwTab) Opener() Tab {
	opener, err := t.page.Opener()
	if err != nil || opener == nil {
		return nil
	}
	return t.driver.tab(opener)
}

func (t *pwTab) Subscribe(listener TabListener) {
	t.page.OnConsole(func(msg playwright.ConsoleMessage) {
		entry := ConsoleMessage{Level: msg.Type(), Text: msg.Text()}
		if loc := msg.Location(); loc != nil && loc.URL != "" {
			entry.Location = fmt.Sprintf("%s:%d", loc.URL, loc.LineNumber)
		}
		listener.Console(entry)
	})
	t.page.OnPageError(func(err error) {
		listener.PageError(err)
	})
	t.page.OnRequest(func(req playwright.Request) {
		listener.RequestStarted(toRequest(req))
	})
	t.page.OnRequestFinished(func(req playwright.Request) {
		listener.RequestFinished(toRequest(req), "")
	})
	t.page.OnRequestFailed(func(req playwright.Request) {
		failure := "failed"
		if err := req.Failure(); err != nil {
			failure = err.Error()
		}
		listener.RequestFinished(toRequest(req), failure)
	})
	t.page.OnResponse(func(resp playwright.Response) {
		listener.Response(Response{
			Request:     toRequest(resp.Request()),
			URL:         resp.URL(),
			Status:      resp.Status(),
			ContentType: resp.Headers()["content-type"],
			Body:        resp.Body,
		})
	})
	t.page.OnPopup(func(popup playwright.Page) {
		listener.Popup(t.driver.tab(popup))
	})
	t.page.OnClose(func(page playwright.Page) {
		listener.Closed()
		t.driver.forget(page)
	})
}

func toRequest(req playwright.Request) Request {
	return Request{
		// Request objects live for the whole request, so identity is a stable id.
		ID:           fmt.Sprintf("%p", req),
		URL:          req.URL(),
		Method:       req.Method(),
		ResourceType: req.ResourceType(),
	}
}

type pwLocator struct {
	loc playwright.Locator
}

func (l *pwLocator) Click(timeout time.Duration) error {
	return l.loc.Click(playwright.LocatorClickOptions{Timeout: toMillis(timeout)})
}

func (l *pwLocator) Fill(value string, timeout time.Duration) error {
	return l.loc.Fill(value, playwright.LocatorFillOptions{Timeout: toMillis(timeout)})
}

func (l *pwLocator) Press(key string, timeout time.Duration) error {
	return l.loc.Press(key, playwright.LocatorPressOptions{Timeout: toMillis(timeout)})
}

func (l *pwLocator) Hover(timeout time.Duration) error {
	return l.loc.Hover(playwright.LocatorHoverOptions{Timeout: toMillis(timeout)})
}

func (l *pwLocator) SelectOption(values []string, timeout time.Duration) ([]string, error) {
	return l.loc.SelectOption(
		playwright.SelectOptionValues{Values: &values},
		playwright.LocatorSelectOptionOptions{Timeout: toMillis(timeout)},
	)
}

func (l *pwLocator) DragTo(target Locator, timeout time.Duration) error {
	other, ok := target.(*pwLocator)
	if !ok {
		return fmt.Errorf("drag target is not a playwright locator")
	}
	return l.loc.DragTo(other.loc, playwright.LocatorDragToOptions{Timeout: toMillis(timeout)})
}

func (l *pwLocator) ScrollIntoView(timeout time.Duration) error {
	return l.loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{Timeout: toMillis(timeout)})
}

func (l *pwLocator) Screenshot(timeout time.Duration) ([]byte, error) {
	return l.loc.Screenshot(playwright.LocatorScreenshotOptions{Timeout: toMillis(timeout)})
}

func waitUntilState(value string) *playwright.WaitUntilState {
	switch strings.ToLower(value) {
	case "load":
		return playwright.WaitUntilStateLoad
	case "networkidle":
		return playwright.WaitUntilStateNetworkidle
	case "commit":
		return playwright.WaitUntilStateCommit
	default:
		return playwright.WaitUntilStateDomcontentloaded
	}
}

func toMillis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}
