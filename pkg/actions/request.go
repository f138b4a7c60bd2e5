package actions

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/samber/lo"

	"github.com/entrhq/browser-sidecar/pkg/browser"
)

// Action names accepted in Request.Action.
const (
	ActionProfiles       = "profiles"
	ActionStatus         = "status"
	ActionStart          = "start"
	ActionStop           = "stop"
	ActionResetProfile   = "reset_profile"
	ActionSetTimezone    = "set_timezone"
	ActionSetLocale      = "set_locale"
	ActionSetDevice      = "set_device"
	ActionTabs           = "tabs"
	ActionOpen           = "open"
	ActionFocus          = "focus"
	ActionClose          = "close"
	ActionNavigate       = "navigate"
	ActionSnapshot       = "snapshot"
	ActionScreenshot     = "screenshot"
	ActionAct            = "act"
	ActionActBatch       = "act_batch"
	ActionConsole        = "console"
	ActionErrors         = "errors"
	ActionRequests       = "requests"
	ActionResponseBody   = "response_body"
	ActionPDF            = "pdf"
	ActionCookiesGet     = "cookies_get"
	ActionCookiesSet     = "cookies_set"
	ActionCookiesClear   = "cookies_clear"
	ActionStorageGet     = "storage_get"
	ActionStorageSet     = "storage_set"
	ActionStorageClear   = "storage_clear"
	ActionSetOffline     = "set_offline"
	ActionSetHeaders     = "set_headers"
	ActionSetCredentials = "set_credentials"
	ActionSetGeolocation = "set_geolocation"
	ActionSetMedia       = "set_media"
	ActionTraceStart     = "trace_start"
	ActionTraceStop      = "trace_stop"
	ActionEvaluate       = "evaluate"
)

// Request is the caller's action envelope.
type Request struct {
	Action   string          `json:"action"`
	Profile  string          `json:"profile,omitempty"`
	TargetID string          `json:"target_id,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// Params is the decoded, action-specific part of a request.
type Params interface {
	Validate() error
}

// Command is a decoded and validated request.
type Command struct {
	Action   string
	Profile  string
	TargetID string
	Params   Params
}

// paramFactories maps every action to a constructor for its params variant.
var paramFactories = map[string]func() Params{
	ActionProfiles:       func() Params { return &NoParams{} },
	ActionStatus:         func() Params { return &NoParams{} },
	ActionStart:          func() Params { return &NoParams{} },
	ActionStop:           func() Params { return &NoParams{} },
	ActionResetProfile:   func() Params { return &NoParams{} },
	ActionSetTimezone:    func() Params { return &TimezoneParams{} },
	ActionSetLocale:      func() Params { return &LocaleParams{} },
	ActionSetDevice:      func() Params { return &DeviceParams{} },
	ActionTabs:           func() Params { return &NoParams{} },
	ActionOpen:           func() Params { return &OpenParams{} },
	ActionFocus:          func() Params { return &NoParams{} },
	ActionClose:          func() Params { return &NoParams{} },
	ActionNavigate:       func() Params { return &browser.NavigateRequest{} },
	ActionSnapshot:       func() Params { return &SnapshotParams{} },
	ActionScreenshot:     func() Params { return &browser.ScreenshotRequest{} },
	ActionAct:            func() Params { return &browser.ActRequest{} },
	ActionActBatch:       func() Params { return &browser.BatchRequest{} },
	ActionConsole:        func() Params { return &ConsoleParams{} },
	ActionErrors:         func() Params { return &ErrorsParams{} },
	ActionRequests:       func() Params { return &RequestsParams{} },
	ActionResponseBody:   func() Params { return &ResponseBodyParams{} },
	ActionPDF:            func() Params { return &browser.PDFRequest{} },
	ActionCookiesGet:     func() Params { return &CookiesGetParams{} },
	ActionCookiesSet:     func() Params { return &CookiesSetParams{} },
	ActionCookiesClear:   func() Params { return &NoParams{} },
	ActionStorageGet:     func() Params { return &StorageParams{op: browser.StorageGet} },
	ActionStorageSet:     func() Params { return &StorageParams{op: browser.StorageSet} },
	ActionStorageClear:   func() Params { return &StorageParams{op: browser.StorageClear} },
	ActionSetOffline:     func() Params { return &OfflineParams{} },
	ActionSetHeaders:     func() Params { return &HeadersParams{} },
	ActionSetCredentials: func() Params { return &CredentialsParams{} },
	ActionSetGeolocation: func() Params { return &GeolocationParams{} },
	ActionSetMedia:       func() Params { return &MediaParams{} },
	ActionTraceStart:     func() Params { return &TraceStartParams{} },
	ActionTraceStop:      func() Params { return &NoParams{} },
	ActionEvaluate:       func() Params { return &EvaluateParams{} },
}

// targetRequired lists actions that need an explicit target_id.
var targetRequired = []string{ActionFocus}

// Actions returns every supported action name.
func Actions() []string {
	return lo.Keys(paramFactories)
}

// IsAction reports whether name is a recognized, normalized action name.
func IsAction(name string) bool {
	_, ok := paramFactories[name]
	return ok
}

// Decode turns a request envelope into a validated Command.
func Decode(req Request) (*Command, error) {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action == "" {
		return nil, browser.Validationf("action is required")
	}
	factory, ok := paramFactories[action]
	if !ok {
		return nil, browser.Validationf("unknown action %q", req.Action)
	}

	cmd := &Command{
		Action:   action,
		Profile:  strings.TrimSpace(req.Profile),
		TargetID: strings.TrimSpace(req.TargetID),
		Params:   factory(),
	}
	if lo.Contains(targetRequired, action) && cmd.TargetID == "" {
		return nil, browser.Validationf("%s requires target_id", action)
	}

	raw := bytes.TrimSpace(req.Params)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, cmd.Params); err != nil {
			return nil, &browser.ValidationError{Message: "invalid params for " + action, Err: err}
		}
	}
	if err := cmd.Params.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}
