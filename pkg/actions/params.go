package actions

import (
	"encoding/json"
	"strings"

	"github.com/entrhq/browser-sidecar/pkg/browser"
	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

// MaxLogLimit caps the limit of the console, errors, requests and
// response_body actions.
const MaxLogLimit = 1000

// NoParams is the variant of actions without parameters.
type NoParams struct{}

func (*NoParams) Validate() error { return nil }

// TimezoneParams sets an IANA timezone override.
type TimezoneParams struct {
	TimezoneID string `json:"timezone_id"`
}

func (p *TimezoneParams) Validate() error {
	p.TimezoneID = strings.TrimSpace(p.TimezoneID)
	if p.TimezoneID == "" {
		return browser.Validationf("timezone_id is required")
	}
	return nil
}

// LocaleParams sets a BCP 47 locale override.
type LocaleParams struct {
	Locale string `json:"locale"`
}

func (p *LocaleParams) Validate() error {
	p.Locale = strings.TrimSpace(p.Locale)
	if p.Locale == "" {
		return browser.Validationf("locale is required")
	}
	return nil
}

// DeviceParams names a device preset or describes one explicitly.
type DeviceParams struct {
	Name              string  `json:"name,omitempty"`
	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
	DeviceScaleFactor float64 `json:"device_scale_factor,omitempty"`
	Mobile            bool    `json:"mobile,omitempty"`
	HasTouch          bool    `json:"has_touch,omitempty"`
	UserAgent         string  `json:"user_agent,omitempty"`
}

func (p *DeviceParams) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name != "" {
		return nil
	}
	if p.Width <= 0 || p.Height <= 0 {
		return browser.Validationf("set_device requires name or positive width and height")
	}
	if p.DeviceScaleFactor < 0 {
		return browser.Validationf("device_scale_factor must not be negative")
	}
	return nil
}

func (p *DeviceParams) profile() driver.DeviceProfile {
	return driver.DeviceProfile{
		UserAgent:         p.UserAgent,
		Width:             p.Width,
		Height:            p.Height,
		DeviceScaleFactor: p.DeviceScaleFactor,
		Mobile:            p.Mobile,
		HasTouch:          p.HasTouch || p.Mobile,
	}
}

// OpenParams opens a tab, optionally at url.
type OpenParams struct {
	URL string `json:"url,omitempty"`
}

func (*OpenParams) Validate() error { return nil }

// SnapshotParams selects the snapshot mode.
type SnapshotParams struct {
	Mode string `json:"mode,omitempty"`

	mode browser.SnapshotMode
}

func (p *SnapshotParams) Validate() error {
	mode, err := browser.ParseSnapshotMode(p.Mode)
	if err != nil {
		return err
	}
	p.mode = mode
	return nil
}

// ConsoleParams reads (and optionally clears) console records.
type ConsoleParams struct {
	Limit int    `json:"limit,omitempty"`
	Level string `json:"level,omitempty"`
	Clear bool   `json:"clear,omitempty"`
}

func (p *ConsoleParams) Validate() error {
	return validateLimit(p.Limit)
}

// ErrorsParams reads (and optionally clears) page errors and warnings.
type ErrorsParams struct {
	Limit int  `json:"limit,omitempty"`
	Clear bool `json:"clear,omitempty"`
}

func (p *ErrorsParams) Validate() error {
	return validateLimit(p.Limit)
}

// RequestsParams reads (and optionally clears) the request log.
type RequestsParams struct {
	Limit  int    `json:"limit,omitempty"`
	Filter string `json:"filter,omitempty"`
	Clear  bool   `json:"clear,omitempty"`
}

func (p *RequestsParams) Validate() error {
	return validateLimit(p.Limit)
}

// ResponseBodyParams reads captured bodies and toggles capture.
type ResponseBodyParams struct {
	URLContains string `json:"url_contains,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Enable      *bool  `json:"enable,omitempty"`
	Clear       bool   `json:"clear,omitempty"`
}

func (p *ResponseBodyParams) Validate() error {
	return validateLimit(p.Limit)
}

func validateLimit(limit int) error {
	if limit < 0 || limit > MaxLogLimit {
		return browser.Validationf("limit must be between 0 and %d", MaxLogLimit)
	}
	return nil
}

// CookiesGetParams limits cookies to the given urls.
type CookiesGetParams struct {
	URLs []string `json:"urls,omitempty"`
}

func (*CookiesGetParams) Validate() error { return nil }

// CookiesSetParams adds cookies to the context.
type CookiesSetParams struct {
	Cookies []driver.Cookie `json:"cookies"`
}

func (p *CookiesSetParams) Validate() error {
	if len(p.Cookies) == 0 {
		return browser.Validationf("cookies must not be empty")
	}
	return nil
}

// StorageParams is shared by storage_get, storage_set and storage_clear.
type StorageParams struct {
	browser.StorageRequest

	op string
}

func (p *StorageParams) Validate() error {
	return p.StorageRequest.Validate(p.op)
}

// OfflineParams toggles network emulation.
type OfflineParams struct {
	Offline *bool `json:"offline"`
}

func (p *OfflineParams) Validate() error {
	if p.Offline == nil {
		return browser.Validationf("offline is required")
	}
	return nil
}

// HeadersParams replaces the extra HTTP headers. An empty map clears them.
type HeadersParams struct {
	Headers map[string]string `json:"headers"`
}

func (p *HeadersParams) Validate() error {
	if p.Headers == nil {
		return browser.Validationf("headers is required (use {} to clear)")
	}
	for name := range p.Headers {
		if strings.TrimSpace(name) == "" {
			return browser.Validationf("header names must not be empty")
		}
	}
	return nil
}

// CredentialsParams sets or clears HTTP basic credentials.
type CredentialsParams struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Clear    bool   `json:"clear,omitempty"`
}

func (p *CredentialsParams) Validate() error {
	if !p.Clear && p.Username == "" {
		return browser.Validationf("set_credentials requires username or clear")
	}
	return nil
}

// GeolocationParams sets or clears the emulated position.
type GeolocationParams struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Clear     bool     `json:"clear,omitempty"`
}

func (p *GeolocationParams) Validate() error {
	if p.Clear {
		return nil
	}
	if p.Latitude == nil || p.Longitude == nil {
		return browser.Validationf("set_geolocation requires latitude and longitude, or clear")
	}
	return nil
}

// MediaParams sets the preferred color scheme.
type MediaParams struct {
	ColorScheme string `json:"color_scheme"`
}

func (p *MediaParams) Validate() error {
	p.ColorScheme = strings.ToLower(strings.TrimSpace(p.ColorScheme))
	if p.ColorScheme == "" {
		return browser.Validationf("color_scheme is required")
	}
	return browser.ValidateColorScheme(p.ColorScheme)
}

// TraceStartParams chooses what a trace records. Both default to true.
type TraceStartParams struct {
	Screenshots *bool `json:"screenshots,omitempty"`
	Snapshots   *bool `json:"snapshots,omitempty"`
}

func (*TraceStartParams) Validate() error { return nil }

// EvaluateParams runs caller JavaScript in a target.
type EvaluateParams struct {
	Expression string          `json:"expression"`
	Arg        json.RawMessage `json:"arg,omitempty"`
}

func (p *EvaluateParams) Validate() error {
	if strings.TrimSpace(p.Expression) == "" {
		return browser.Validationf("expression is required")
	}
	return nil
}
