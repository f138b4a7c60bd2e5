// Package actions implements the browser.action surface of the sidecar:
// request decoding into per-action variants, profile resolution and policy
// checks, and one handler per action.
package actions

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"github.com/entrhq/browser-sidecar/pkg/browser"
	"github.com/entrhq/browser-sidecar/pkg/config"
	"github.com/entrhq/browser-sidecar/pkg/logging"
)

// StatusForbidden is reported in the response meta when policy refuses an action.
const StatusForbidden = 403

// ErrEvaluateDisabled is returned for evaluate while the host policy forbids it.
var ErrEvaluateDisabled = errors.New("evaluate is disabled by policy (browser.evaluate_enabled=false)")

// disabledAllowed lists the actions served while automation is disabled.
var disabledAllowed = []string{ActionProfiles, ActionStatus, ActionStop}

// Result is the outcome of one action. Perf, Status, Profile and Action
// belong in the response meta, never in Data.
type Result struct {
	Data    interface{}
	Perf    browser.PerfCounters
	Status  int
	Profile string
	Action  string
}

// call carries everything a handler needs for one request.
type call struct {
	cmd     *Command
	name    string
	profile config.ProfileConfig
	cfg     config.BrowserConfig
	paths   config.Paths
	session *browser.ProfileSession
	result  *Result
}

func (c *call) actConfig() browser.ActConfig {
	return browser.ActConfig{Preset: c.cfg.PerformancePreset, OperationTimeoutMs: c.cfg.OperationTimeoutMs}
}

type handler func(ctx context.Context, c *call) (interface{}, error)

type route struct {
	fn handler
	// connect makes sure the profile has a live browser before fn runs.
	connect bool
}

// Service executes actions against a session registry.
type Service struct {
	registry *browser.SessionRegistry
	logger   *logging.Logger
	routes   map[string]route
}

// NewService creates a service bound to registry.
func NewService(registry *browser.SessionRegistry, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{registry: registry, logger: logger}
	s.routes = map[string]route{
		ActionStatus:         {fn: s.status},
		ActionStop:           {fn: s.stop},
		ActionResetProfile:   {fn: s.resetProfile},
		ActionStart:          {fn: s.start, connect: true},
		ActionSetTimezone:    {fn: s.setTimezone, connect: true},
		ActionSetLocale:      {fn: s.setLocale, connect: true},
		ActionSetDevice:      {fn: s.setDevice, connect: true},
		ActionTabs:           {fn: s.tabs, connect: true},
		ActionOpen:           {fn: s.open, connect: true},
		ActionFocus:          {fn: s.focus, connect: true},
		ActionClose:          {fn: s.close, connect: true},
		ActionNavigate:       {fn: s.navigate, connect: true},
		ActionSnapshot:       {fn: s.snapshot, connect: true},
		ActionScreenshot:     {fn: s.screenshot, connect: true},
		ActionAct:            {fn: s.act, connect: true},
		ActionActBatch:       {fn: s.actBatch, connect: true},
		ActionConsole:        {fn: s.console, connect: true},
		ActionErrors:         {fn: s.errors, connect: true},
		ActionRequests:       {fn: s.requests, connect: true},
		ActionResponseBody:   {fn: s.responseBody, connect: true},
		ActionPDF:            {fn: s.pdf, connect: true},
		ActionCookiesGet:     {fn: s.cookiesGet, connect: true},
		ActionCookiesSet:     {fn: s.cookiesSet, connect: true},
		ActionCookiesClear:   {fn: s.cookiesClear, connect: true},
		ActionStorageGet:     {fn: s.storage, connect: true},
		ActionStorageSet:     {fn: s.storage, connect: true},
		ActionStorageClear:   {fn: s.storage, connect: true},
		ActionSetOffline:     {fn: s.setOffline, connect: true},
		ActionSetHeaders:     {fn: s.setHeaders, connect: true},
		ActionSetCredentials: {fn: s.setCredentials, connect: true},
		ActionSetGeolocation: {fn: s.setGeolocation, connect: true},
		ActionSetMedia:       {fn: s.setMedia, connect: true},
		ActionTraceStart:     {fn: s.traceStart, connect: true},
		ActionTraceStop:      {fn: s.traceStop, connect: true},
		ActionEvaluate:       {fn: s.evaluate, connect: true},
	}
	return s
}

// Handle decodes and runs one action. The returned Result carries meta
// fields even when err is non-nil.
func (s *Service) Handle(ctx context.Context, req Request, cfg config.BrowserConfig, paths config.Paths) (Result, error) {
	var res Result

	cmd, err := Decode(req)
	if err != nil {
		return res, err
	}
	res.Action = cmd.Action

	if !cfg.IsEnabled() && !lo.Contains(disabledAllowed, cmd.Action) {
		return res, &browser.ValidationError{Err: browser.ErrDisabled}
	}

	if cmd.Action == ActionProfiles {
		res.Data = s.profiles(cfg)
		return res, nil
	}

	name, profile, err := cfg.ResolveProfile(cmd.Profile)
	if err != nil {
		return res, &browser.ValidationError{Err: err}
	}
	res.Profile = name

	if cmd.Action == ActionEvaluate && !cfg.EvaluateEnabled {
		res.Status = StatusForbidden
		return res, ErrEvaluateDisabled
	}

	rt, ok := s.routes[cmd.Action]
	if !ok {
		return res, browser.Validationf("unknown action %q", cmd.Action)
	}

	c := &call{cmd: cmd, name: name, profile: profile, cfg: cfg, paths: paths, result: &res}
	if rt.connect {
		c.session, err = s.registry.EnsureContext(ctx, name, browser.ConnectRequest{Profile: profile, Browser: cfg, Paths: paths})
		if err != nil {
			return res, err
		}
	}

	data, err := rt.fn(ctx, c)
	if err != nil {
		s.logger.Debugf("action %s on profile %s failed: %v", cmd.Action, name, err)
		return res, err
	}
	res.Data = data
	return res, nil
}
