// Package config holds the configuration types of the browser sidecar.
//
// Two layers exist. BrowserConfig and Paths are supplied whole by the host
// process on every request and are never loaded or persisted here. Settings
// are process-level knobs loaded once at startup from an optional YAML file
// and the environment.
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Performance presets accepted in BrowserConfig.PerformancePreset.
const (
	PresetSafe     = "safe"
	PresetBalanced = "balanced"
	PresetFast     = "fast"
)

// DefaultProfileName is used when a profile name sanitizes to nothing.
const DefaultProfileName = "openclaw"

// Operation timeout bounds in milliseconds.
const (
	MinOperationTimeoutMs = 1000
	MaxOperationTimeoutMs = 120000
)

// ProfileConfig describes how to reach one named browser profile.
// Either CDPURL (attach) or ExecutablePath (launch) must be set.
type ProfileConfig struct {
	// CDPURL is the control endpoint of an already running browser.
	CDPURL string `json:"cdp_url,omitempty"`

	// ExecutablePath is the browser binary launched with remote debugging.
	ExecutablePath string `json:"executable_path,omitempty"`

	// CDPPort pins the remote debugging port for launched browsers (0 picks a free port).
	CDPPort int `json:"cdp_port,omitempty"`

	// Headless launches the browser without a visible window.
	Headless bool `json:"headless,omitempty"`

	// UserDataDir overrides <profiles_root>/<profile>/user-data.
	UserDataDir string `json:"user_data_dir,omitempty"`

	// ExtraArgs are appended to the launch command line.
	ExtraArgs []string `json:"extra_args,omitempty"`
}

// IsAttach reports whether the profile attaches to an existing browser.
func (p ProfileConfig) IsAttach() bool {
	return strings.TrimSpace(p.CDPURL) != ""
}

// Validate checks that the profile can be reached one way or the other.
func (p ProfileConfig) Validate() error {
	if strings.TrimSpace(p.CDPURL) == "" && strings.TrimSpace(p.ExecutablePath) == "" {
		return fmt.Errorf("profile requires either cdp_url or executable_path")
	}
	if p.CDPPort < 0 || p.CDPPort > 65535 {
		return fmt.Errorf("cdp_port must be between 0 and 65535")
	}
	return nil
}

// BrowserConfig is the host-supplied browser configuration.
type BrowserConfig struct {
	Enabled                 *bool                    `json:"enabled,omitempty"`
	DefaultProfile          string                   `json:"default_profile,omitempty"`
	Profiles                map[string]ProfileConfig `json:"profiles,omitempty"`
	AllowPrivateNetwork     bool                     `json:"allow_private_network,omitempty"`
	PrivateNetworkAllowlist []string                 `json:"private_network_allowlist,omitempty"`
	PerformancePreset       string                   `json:"performance_preset,omitempty"`
	OperationTimeoutMs      int                      `json:"operation_timeout_ms,omitempty"`
	CaptureResponseBodies   bool                     `json:"capture_response_bodies,omitempty"`
	EvaluateEnabled         bool                     `json:"evaluate_enabled,omitempty"`
}

// IsEnabled reports whether browser automation is switched on.
// A missing flag counts as enabled.
func (c BrowserConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ProfileNames returns the configured profile names in sorted order.
func (c BrowserConfig) ProfileNames() []string {
	names := lo.Keys(c.Profiles)
	sort.Strings(names)
	return names
}

// ResolveProfile picks the profile a request targets: the explicit name when
// it (or its sanitized form) is configured, else the configured default, else
// the first configured profile. An unknown explicit name is not an error.
func (c BrowserConfig) ResolveProfile(explicit string) (string, ProfileConfig, error) {
	if len(c.Profiles) == 0 {
		return "", ProfileConfig{}, fmt.Errorf("no browser profiles configured")
	}

	if name := strings.TrimSpace(explicit); name != "" {
		for _, candidate := range []string{name, SanitizeProfileName(name)} {
			if profile, ok := c.Profiles[candidate]; ok {
				return candidate, profile, nil
			}
		}
	}

	if name := strings.TrimSpace(c.DefaultProfile); name != "" {
		if profile, ok := c.Profiles[name]; ok {
			return name, profile, nil
		}
	}

	name := c.ProfileNames()[0]
	return name, c.Profiles[name], nil
}

// ClampTimeout bounds an operation timeout to the accepted range.
// Zero or negative values return zero so callers can fall back to defaults.
func ClampTimeout(ms int) int {
	if ms <= 0 {
		return 0
	}
	return lo.Clamp(ms, MinOperationTimeoutMs, MaxOperationTimeoutMs)
}

// Paths are the host-supplied filesystem roots.
type Paths struct {
	ProfilesRoot string `json:"profiles_root"`
	AppLogDir    string `json:"app_log_dir"`
}

// UserDataDir returns the browser user-data directory for a profile.
func (p Paths) UserDataDir(profile string, cfg ProfileConfig) (string, error) {
	if dir := strings.TrimSpace(cfg.UserDataDir); dir != "" {
		return filepath.Clean(dir), nil
	}
	if strings.TrimSpace(p.ProfilesRoot) == "" {
		return "", fmt.Errorf("paths.profiles_root is required to launch profile %q", profile)
	}
	return filepath.Join(p.ProfilesRoot, SanitizeProfileName(profile), "user-data"), nil
}

// ArtifactDir returns the directory for one kind of artifact (screenshots, pdf, traces).
func (p Paths) ArtifactDir(kind string) (string, error) {
	if strings.TrimSpace(p.AppLogDir) == "" {
		return "", fmt.Errorf("paths.app_log_dir is required to write %s", kind)
	}
	return filepath.Join(p.AppLogDir, "browser", kind), nil
}

// SanitizeProfileName maps a profile name to a filesystem-safe directory name.
// ASCII letters, digits, '-' and '_' are kept (lowercased); everything else
// becomes '-'. Leading and trailing dashes are trimmed.
func SanitizeProfileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x80 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'):
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	safe := strings.Trim(strings.ToLower(b.String()), "-")
	if safe == "" {
		return DefaultProfileName
	}
	return safe
}
