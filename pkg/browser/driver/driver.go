// Package driver is the boundary between the sidecar and the browser
// automation library. The core packages only see the interfaces declared
// here; the playwright-go binding lives in playwright.go.
package driver

import (
	"context"
	"time"
)

// Driver opens connections to browsers exposing a control endpoint.
type Driver interface {
	// Connect attaches to a browser at a CDP http(s) or ws(s) endpoint.
	Connect(ctx context.Context, endpoint string, timeout time.Duration) (Connection, error)

	// Device looks up a named device emulation preset.
	Device(name string) (DeviceProfile, bool)

	// Close releases the driver itself.
	Close() error
}

// Connection is one attached browser.
type Connection interface {
	IsConnected() bool

	// DefaultContext returns the browser's default context, or nil if none exists.
	DefaultContext() BrowserContext

	OnDisconnected(fn func())
	Close() error
}

// BrowserContext is a browser context (cookie jar, permissions, tabs).
type BrowserContext interface {
	// Pages lists open tabs. An error means the context is unusable.
	Pages() ([]Tab, error)
	NewPage() (Tab, error)

	OnPage(fn func(Tab))
	OnClose(fn func())

	SetExtraHTTPHeaders(headers map[string]string) error
	SetGeolocation(geo *Geolocation) error
	GrantPermissions(permissions []string) error
	ClearPermissions() error
	SetOffline(offline bool) error

	Cookies(urls ...string) ([]Cookie, error)
	AddCookies(cookies []Cookie) error
	ClearCookies() error

	// RouteAll installs a handler deciding, per request URL, whether it may proceed.
	RouteAll(allow func(url string) bool) error

	StartTracing(opts TraceOptions) error
	StopTracing(path string) error

	Close() error
}

// Tab is one open page.
type Tab interface {
	URL() string
	Title() (string, error)
	IsClosed() bool

	Goto(url string, opts GotoOptions) (*NavigationResponse, error)
	BringToFront() error
	Close() error

	// Evaluate runs a JavaScript function expression with one argument.
	Evaluate(expression string, arg interface{}) (interface{}, error)

	Locator(selector string) Locator
	ByRole(role, name string) Locator
	ByLabel(label string) Locator

	MouseClick(x, y float64) error
	MouseWheel(dx, dy float64) error
	KeyPress(key string) error
	WaitForSelector(selector string, timeout time.Duration) error

	Screenshot(opts ScreenshotOptions) ([]byte, error)
	PDF(opts PDFOptions) ([]byte, error)

	Viewport() (width, height int)
	SetViewport(width, height int) error
	EmulateMedia(colorScheme string) error

	// CDP sends a raw protocol command on a session bound to this tab.
	CDP(method string, params map[string]interface{}) (interface{}, error)

	// Opener returns the tab that opened this one, or nil.
	Opener() Tab

	// Subscribe attaches listener to this tab's events.
	Subscribe(listener TabListener)
}

// Locator resolves an element lazily at interaction time.
// Every method is bounded by the given timeout.
type Locator interface {
	Click(timeout time.Duration) error
	Fill(value string, timeout time.Duration) error
	Press(key string, timeout time.Duration) error
	Hover(timeout time.Duration) error
	SelectOption(values []string, timeout time.Duration) ([]string, error)
	DragTo(target Locator, timeout time.Duration) error
	ScrollIntoView(timeout time.Duration) error
	Screenshot(timeout time.Duration) ([]byte, error)
}

// TabListener receives a tab's events. Methods are called from the driver's
// event goroutine and must not block on driver calls.
type TabListener interface {
	Console(msg ConsoleMessage)
	PageError(err error)
	RequestStarted(req Request)
	RequestFinished(req Request, failure string)
	Response(resp Response)
	Popup(tab Tab)
	Closed()
}

// ConsoleMessage is one console API call.
type ConsoleMessage struct {
	Level    string
	Text     string
	Location string
}

// Request identifies one network request. ID is stable for its lifetime.
type Request struct {
	ID           string
	URL          string
	Method       string
	ResourceType string
}

// Response is a completed network response. Body performs a driver round
// trip and must not be called from the event goroutine.
type Response struct {
	Request     Request
	URL         string
	Status      int
	ContentType string
	Body        func() ([]byte, error)
}

// NavigationResponse describes the main-frame response of a navigation.
type NavigationResponse struct {
	URL         string
	Status      int
	ContentType string
}

// GotoOptions configures Tab.Goto.
type GotoOptions struct {
	// WaitUntil is load, domcontentloaded, networkidle or commit.
	WaitUntil string
	Timeout   time.Duration
}

// ScreenshotOptions configures Tab.Screenshot.
type ScreenshotOptions struct {
	FullPage bool
	Format   string // png or jpeg
	Quality  int
}

// PDFOptions configures Tab.PDF.
type PDFOptions struct {
	Format          string
	Landscape       bool
	PrintBackground bool
}

// TraceOptions configures BrowserContext.StartTracing.
type TraceOptions struct {
	Name        string
	Screenshots bool
	Snapshots   bool
}

// Geolocation is an emulated position.
type Geolocation struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// Cookie is a browser cookie. URL may be set instead of Domain/Path when adding.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	URL      string  `json:"url,omitempty"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

// DeviceProfile is a device emulation preset.
type DeviceProfile struct {
	Name              string  `json:"name,omitempty"`
	UserAgent         string  `json:"user_agent,omitempty"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	DeviceScaleFactor float64 `json:"device_scale_factor"`
	Mobile            bool    `json:"mobile"`
	HasTouch          bool    `json:"has_touch"`
}
