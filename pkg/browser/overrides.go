package browser

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

// Valid color schemes for SetColorScheme.
var colorSchemes = []string{"light", "dark", "no-preference"}

// bestEffort runs a setup call that must not fail the caller. A failure is
// logged and kept in the error buffer; the return value reports success.
func (s *ProfileSession) bestEffort(targetID, op string, fn func() error) bool {
	if err := fn(); err != nil {
		s.warn(targetID, "%s failed: %v", op, err)
		return false
	}
	return true
}

// tabsLocked returns id/tab pairs in ascending id order.
func (s *ProfileSession) tabsLocked() []lo.Tuple2[string, driver.Tab] {
	ids := s.targetIDsLocked()
	out := make([]lo.Tuple2[string, driver.Tab], len(ids))
	for i, id := range ids {
		out[i] = lo.T2(id, s.tabs[id])
	}
	return out
}

// applyContextOverrides re-applies every stored override after attaching.
func (s *ProfileSession) applyContextOverrides() {
	s.mu.Lock()
	bctx := s.bctx
	o := s.overrides
	tabs := s.tabsLocked()
	s.mu.Unlock()

	if bctx == nil {
		return
	}

	if headers := effectiveHeaders(o); len(headers) > 0 {
		s.bestEffort("", "set extra headers", func() error { return bctx.SetExtraHTTPHeaders(headers) })
	}
	if o.Geolocation != nil {
		s.bestEffort("", "set geolocation", func() error { return applyGeolocation(bctx, o.Geolocation) })
	}
	if o.Offline {
		s.bestEffort("", "set offline", func() error { return bctx.SetOffline(true) })
	}
	for _, t := range tabs {
		s.applyTabOverrides(t.A, t.B)
	}
}

// applyTabOverrides applies the per-tab emulation settings to one tab.
func (s *ProfileSession) applyTabOverrides(id string, tab driver.Tab) {
	o := s.Overrides()

	if o.ColorScheme != "" {
		s.bestEffort(id, "emulate color scheme", func() error { return tab.EmulateMedia(o.ColorScheme) })
	}
	if o.Timezone != "" {
		s.bestEffort(id, "set timezone", func() error { return applyTimezone(tab, o.Timezone) })
	}
	if o.Locale != "" {
		s.bestEffort(id, "set locale", func() error { return applyLocale(tab, o.Locale) })
	}
	if o.Device != nil {
		s.bestEffort(id, "emulate device", func() error { return applyDevice(tab, *o.Device) })
	}
}

// effectiveHeaders merges custom headers with basic auth credentials.
func effectiveHeaders(o Overrides) map[string]string {
	headers := make(map[string]string, len(o.Headers)+1)
	for k, v := range o.Headers {
		headers[k] = v
	}
	if o.Credentials != nil {
		token := base64.StdEncoding.EncodeToString([]byte(o.Credentials.Username + ":" + o.Credentials.Password))
		headers["Authorization"] = "Basic " + token
	}
	return headers
}

func applyGeolocation(bctx driver.BrowserContext, geo *driver.Geolocation) error {
	if err := bctx.GrantPermissions([]string{"geolocation"}); err != nil {
		return fmt.Errorf("grant geolocation permission: %w", err)
	}
	return bctx.SetGeolocation(geo)
}

func applyTimezone(tab driver.Tab, tz string) error {
	_, err := tab.CDP("Emulation.setTimezoneOverride", map[string]interface{}{"timezoneId": tz})
	return err
}

func applyLocale(tab driver.Tab, locale string) error {
	_, err := tab.CDP("Emulation.setLocaleOverride", map[string]interface{}{"locale": locale})
	return err
}

func applyDevice(tab driver.Tab, d driver.DeviceProfile) error {
	_, err := tab.CDP("Emulation.setDeviceMetricsOverride", map[string]interface{}{
		"width":             d.Width,
		"height":            d.Height,
		"deviceScaleFactor": d.DeviceScaleFactor,
		"mobile":            d.Mobile,
	})
	if err != nil {
		return err
	}
	if d.HasTouch {
		if _, err := tab.CDP("Emulation.setTouchEmulationEnabled", map[string]interface{}{"enabled": true}); err != nil {
			return err
		}
	}
	if d.UserAgent != "" {
		if _, err := tab.CDP("Emulation.setUserAgentOverride", map[string]interface{}{"userAgent": d.UserAgent}); err != nil {
			return err
		}
	}
	return tab.SetViewport(d.Width, d.Height)
}

// connectedContext returns the context and current tabs, or ErrNotConnected.
func (s *ProfileSession) connectedContext() (driver.BrowserContext, []lo.Tuple2[string, driver.Tab], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.bctx == nil {
		return nil, nil, ErrNotConnected
	}
	return s.bctx, s.tabsLocked(), nil
}

// SetHeaders stores and applies extra HTTP headers. A nil map clears them.
func (s *ProfileSession) SetHeaders(headers map[string]string) error {
	o := s.UpdateOverrides(func(o *Overrides) { o.Headers = headers })
	return s.pushHeaders(o)
}

// SetCredentials stores and applies basic auth credentials. Nil clears them.
func (s *ProfileSession) SetCredentials(creds *Credentials) error {
	o := s.UpdateOverrides(func(o *Overrides) { o.Credentials = creds })
	return s.pushHeaders(o)
}

func (s *ProfileSession) pushHeaders(o Overrides) error {
	bctx, _, err := s.connectedContext()
	if err != nil {
		return err
	}
	if err := bctx.SetExtraHTTPHeaders(effectiveHeaders(o)); err != nil {
		return fmt.Errorf("set extra headers: %w", err)
	}
	return nil
}

// SetGeolocation stores and applies an emulated position. Nil clears it.
func (s *ProfileSession) SetGeolocation(geo *driver.Geolocation) error {
	if geo != nil {
		if geo.Latitude < -90 || geo.Latitude > 90 {
			return Validationf("latitude must be within [-90, 90]")
		}
		if geo.Longitude < -180 || geo.Longitude > 180 {
			return Validationf("longitude must be within [-180, 180]")
		}
	}

	bctx, _, err := s.connectedContext()
	if err != nil {
		return err
	}
	s.UpdateOverrides(func(o *Overrides) { o.Geolocation = geo })

	if geo == nil {
		if err := bctx.ClearPermissions(); err != nil {
			return fmt.Errorf("clear permissions: %w", err)
		}
		return bctx.SetGeolocation(nil)
	}
	return applyGeolocation(bctx, geo)
}

// SetOffline toggles network emulation.
func (s *ProfileSession) SetOffline(offline bool) error {
	bctx, _, err := s.connectedContext()
	if err != nil {
		return err
	}
	s.UpdateOverrides(func(o *Overrides) { o.Offline = offline })
	return bctx.SetOffline(offline)
}

// ValidateColorScheme checks a normalized prefers-color-scheme value.
func ValidateColorScheme(scheme string) error {
	if !lo.Contains(colorSchemes, scheme) {
		return Validationf("color_scheme must be one of %s", strings.Join(colorSchemes, ", "))
	}
	return nil
}

// SetColorScheme emulates prefers-color-scheme on every tab.
func (s *ProfileSession) SetColorScheme(scheme string) error {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if err := ValidateColorScheme(scheme); err != nil {
		return err
	}
	s.UpdateOverrides(func(o *Overrides) { o.ColorScheme = scheme })
	return s.eachTab(func(tab driver.Tab) error { return tab.EmulateMedia(scheme) })
}

// SetTimezone overrides the timezone on every tab.
func (s *ProfileSession) SetTimezone(tz string) error {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return Validationf("timezone_id is required")
	}
	if err := s.eachTab(func(tab driver.Tab) error { return applyTimezone(tab, tz) }); err != nil {
		return err
	}
	s.UpdateOverrides(func(o *Overrides) { o.Timezone = tz })
	return nil
}

// SetLocale overrides the locale on every tab.
func (s *ProfileSession) SetLocale(locale string) error {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return Validationf("locale is required")
	}
	if err := s.eachTab(func(tab driver.Tab) error { return applyLocale(tab, locale) }); err != nil {
		return err
	}
	s.UpdateOverrides(func(o *Overrides) { o.Locale = locale })
	return nil
}

// SetDevice emulates a device on every tab.
func (s *ProfileSession) SetDevice(d driver.DeviceProfile) error {
	if d.Width <= 0 || d.Height <= 0 {
		return Validationf("device width and height must be positive")
	}
	if d.DeviceScaleFactor <= 0 {
		d.DeviceScaleFactor = 1
	}
	if err := s.eachTab(func(tab driver.Tab) error { return applyDevice(tab, d) }); err != nil {
		return err
	}
	s.UpdateOverrides(func(o *Overrides) { o.Device = &d })
	return nil
}

func (s *ProfileSession) eachTab(fn func(driver.Tab) error) error {
	_, tabs, err := s.connectedContext()
	if err != nil {
		return err
	}
	for _, t := range tabs {
		if err := fn(t.B); err != nil {
			return fmt.Errorf("target %s: %w", t.A, err)
		}
	}
	return nil
}
