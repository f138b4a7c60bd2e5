package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the environment variable prefix for Settings overrides.
const EnvPrefix = "BROWSER_SIDECAR"

// Settings are the process-level knobs of the sidecar.
//
// Values are layered: defaults, then the optional YAML file, then
// BROWSER_SIDECAR_* environment variables, then command-line flags.
type Settings struct {
	// Logging
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogDir   string `yaml:"log_dir" envconfig:"LOG_DIR"`

	// MetricsAddr serves prometheus metrics over HTTP when set (e.g. 127.0.0.1:9464).
	MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`

	// Event capture caps
	ConsoleBufferSize  int `yaml:"console_buffer_size" envconfig:"CONSOLE_BUFFER_SIZE"`
	ErrorBufferSize    int `yaml:"error_buffer_size" envconfig:"ERROR_BUFFER_SIZE"`
	RequestBufferSize  int `yaml:"request_buffer_size" envconfig:"REQUEST_BUFFER_SIZE"`
	BodyBufferSize     int `yaml:"body_buffer_size" envconfig:"BODY_BUFFER_SIZE"`
	BodyMaxChars       int `yaml:"body_max_chars" envconfig:"BODY_MAX_CHARS"`
	MaxRequestLineSize int `yaml:"max_request_line_size" envconfig:"MAX_REQUEST_LINE_SIZE"`

	// Browser lifecycle
	ReadinessTTL      time.Duration `yaml:"readiness_ttl" envconfig:"READINESS_TTL"`
	LaunchTimeout     time.Duration `yaml:"launch_timeout" envconfig:"LAUNCH_TIMEOUT"`
	LaunchPollEvery   time.Duration `yaml:"launch_poll_interval" envconfig:"LAUNCH_POLL_INTERVAL"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT"`
	SkipDriverInstall bool          `yaml:"skip_driver_install" envconfig:"SKIP_DRIVER_INSTALL"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:           "info",
		ConsoleBufferSize:  500,
		ErrorBufferSize:    200,
		RequestBufferSize:  500,
		BodyBufferSize:     50,
		BodyMaxChars:       20000,
		MaxRequestLineSize: 16 << 20,
		ReadinessTTL:       15 * time.Second,
		LaunchTimeout:      15 * time.Second,
		LaunchPollEvery:    250 * time.Millisecond,
		ConnectTimeout:     10 * time.Second,
	}
}

// LoadSettings builds Settings from defaults, the YAML file at path (if
// non-empty) and the environment.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("failed to parse settings file: %w", err)
		}
	}

	// No default tags: unset variables leave file values alone.
	if err := envconfig.Process(EnvPrefix, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Validate checks the settings for out-of-range values.
func (s Settings) Validate() error {
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error (got %q)", s.LogLevel)
	}

	sizes := map[string]int{
		"console_buffer_size":   s.ConsoleBufferSize,
		"error_buffer_size":     s.ErrorBufferSize,
		"request_buffer_size":   s.RequestBufferSize,
		"body_buffer_size":      s.BodyBufferSize,
		"body_max_chars":        s.BodyMaxChars,
		"max_request_line_size": s.MaxRequestLineSize,
	}
	for name, v := range sizes {
		if v <= 0 {
			return fmt.Errorf("%s must be greater than 0", name)
		}
	}

	if s.LaunchTimeout <= 0 {
		return fmt.Errorf("launch_timeout must be greater than 0")
	}
	if s.LaunchPollEvery <= 0 || s.LaunchPollEvery > s.LaunchTimeout {
		return fmt.Errorf("launch_poll_interval must be between 0 and launch_timeout")
	}
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be greater than 0")
	}
	if s.ReadinessTTL < 0 {
		return fmt.Errorf("readiness_ttl must not be negative")
	}
	return nil
}
