package browser

import (
	"time"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

// ConnectionMode tells how a profile session reached its browser.
type ConnectionMode string

const (
	ModeAttached ConnectionMode = "attached"
	ModeLaunched ConnectionMode = "launched"
)

// BBox is an element's bounding box in CSS pixels, relative to the viewport.
type BBox struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	CenterX float64 `json:"cx"`
	CenterY float64 `json:"cy"`
}

// RefEntry describes one element found by a snapshot.
type RefEntry struct {
	Ref        string   `json:"ref"`
	Role       string   `json:"role"`
	Tag        string   `json:"tag"`
	InputType  string   `json:"input_type,omitempty"`
	Name       string   `json:"name"`
	Text       string   `json:"text,omitempty"`
	Selector   string   `json:"selector"`
	Fallbacks  []string `json:"fallbacks,omitempty"`
	BBox       BBox     `json:"bbox"`
	InViewport bool     `json:"in_viewport"`
	Disabled   bool     `json:"disabled"`
	Score      float64  `json:"score"`
}

// RefTable maps ref ids to entries. It is replaced wholesale by every snapshot.
type RefTable map[string]RefEntry

// PerfCounters are the timing counters reported in every response's meta.
type PerfCounters struct {
	ResolveMs     int64 `json:"resolve_ms"`
	LocateMs      int64 `json:"locate_ms"`
	ActionMs      int64 `json:"action_ms"`
	FallbackCount int   `json:"fallback_count"`
	TotalMs       int64 `json:"total_ms"`
}

// Add accumulates other into p.
func (p *PerfCounters) Add(other PerfCounters) {
	p.ResolveMs += other.ResolveMs
	p.LocateMs += other.LocateMs
	p.ActionMs += other.ActionMs
	p.FallbackCount += other.FallbackCount
	p.TotalMs += other.TotalMs
}

// ConsoleRecord is one captured console message.
type ConsoleRecord struct {
	TargetID  string    `json:"target_id"`
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Location  string    `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorRecord is one captured page error or sidecar warning.
type ErrorRecord struct {
	TargetID  string    `json:"target_id,omitempty"`
	Source    string    `json:"source"` // page or sidecar
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RequestRecord is one captured network request. Status and Failure are
// filled in when the request completes.
type RequestRecord struct {
	TargetID     string    `json:"target_id"`
	Method       string    `json:"method"`
	URL          string    `json:"url"`
	ResourceType string    `json:"resource_type,omitempty"`
	Status       int       `json:"status,omitempty"`
	Failure      string    `json:"failure,omitempty"`
	Finished     bool      `json:"finished"`
	StartedAt    time.Time `json:"started_at"`
}

// BodyRecord is one captured, truncated response body.
type BodyRecord struct {
	TargetID    string    `json:"target_id"`
	URL         string    `json:"url"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type,omitempty"`
	Body        string    `json:"body"`
	Truncated   bool      `json:"truncated"`
	Timestamp   time.Time `json:"timestamp"`
}

// Credentials are HTTP basic credentials applied to every request.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Overrides are context-level emulation settings re-applied on reconnect
// and to every new tab.
type Overrides struct {
	Headers     map[string]string     `json:"headers,omitempty"`
	Credentials *Credentials          `json:"-"`
	Geolocation *driver.Geolocation   `json:"geolocation,omitempty"`
	ColorScheme string                `json:"color_scheme,omitempty"`
	Timezone    string                `json:"timezone,omitempty"`
	Locale      string                `json:"locale,omitempty"`
	Device      *driver.DeviceProfile `json:"device,omitempty"`
	Offline     bool                  `json:"offline,omitempty"`
}

// TabInfo summarizes one open tab.
type TabInfo struct {
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Active   bool   `json:"active"`
}

// Default values for various operations
const (
	DefaultConsoleBuffer  = 500
	DefaultErrorBuffer    = 200
	DefaultRequestBuffer  = 500
	DefaultBodyBuffer     = 50
	DefaultBodyMaxChars   = 20000
	DefaultReadinessTTL   = 15 * time.Second
	DefaultLaunchTimeout  = 15 * time.Second
	DefaultLaunchPoll     = 250 * time.Millisecond
	DefaultConnectTimeout = 10 * time.Second

	// RefAttribute marks snapshot elements in the DOM.
	RefAttribute = "data-sidecar-ref"
)
