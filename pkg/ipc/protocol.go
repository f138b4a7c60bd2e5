// Package ipc implements the sidecar's line-delimited JSON protocol.
//
// Every line read from the input is one request:
//
//	{"id": 1, "method": "browser.action", "params": {...}}
//
// and produces exactly one response line:
//
//	{"id": 1, "ok": true, "data": {...}, "meta": {"duration_ms": 12, ...}}
//
// Requests are served strictly in order, one at a time.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/entrhq/browser-sidecar/pkg/actions"
	"github.com/entrhq/browser-sidecar/pkg/browser"
	"github.com/entrhq/browser-sidecar/pkg/config"
)

// Protocol methods.
const (
	MethodHealth   = "health"
	MethodShutdown = "shutdown"
	MethodAction   = "browser.action"
)

// Request is one input line.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one output line. ID echoes the request id verbatim and is null
// when the line could not be parsed.
type Response struct {
	ID    json.RawMessage `json:"id"`
	OK    bool            `json:"ok"`
	Data  interface{}     `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Meta  Meta            `json:"meta"`
}

// Meta carries timing and routing details. The perf counters are always
// present, zero when the request did not touch a page.
type Meta struct {
	DurationMs int64 `json:"duration_ms"`
	browser.PerfCounters
	Profile string `json:"profile,omitempty"`
	Action  string `json:"action,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// ActionParams are the params of a browser.action request. The host sends
// its browser configuration and paths with every request.
type ActionParams struct {
	Request       actions.Request      `json:"request"`
	BrowserConfig config.BrowserConfig `json:"browser_config"`
	Paths         config.Paths         `json:"paths"`
}

// ProtocolError reports a malformed line or an unknown method.
type ProtocolError struct {
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// HealthReport is the data of a health response.
type HealthReport struct {
	Status   string   `json:"status"`
	Version  string   `json:"version"`
	PID      int      `json:"pid"`
	UptimeMs int64    `json:"uptime_ms"`
	Profiles []string `json:"profiles"`
}
