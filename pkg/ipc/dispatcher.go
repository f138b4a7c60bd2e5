package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/entrhq/browser-sidecar/pkg/actions"
	"github.com/entrhq/browser-sidecar/pkg/config"
	"github.com/entrhq/browser-sidecar/pkg/logging"
)

// DefaultMaxLineSize bounds a single request line.
const DefaultMaxLineSize = 16 << 20

// ActionHandler runs browser.action requests.
type ActionHandler interface {
	Handle(ctx context.Context, req actions.Request, cfg config.BrowserConfig, paths config.Paths) (actions.Result, error)
}

// Sessions is the view of the session registry the dispatcher needs.
type Sessions interface {
	Names() []string
	CloseAll(ctx context.Context) []string
}

// Options configure a Dispatcher.
type Options struct {
	Version     string
	MaxLineSize int
	Logger      *logging.Logger
}

// Dispatcher reads requests line by line and writes one response per request.
type Dispatcher struct {
	actions  ActionHandler
	sessions Sessions
	logger   *logging.Logger
	version  string
	maxLine  int
	started  time.Time
}

// NewDispatcher creates a dispatcher serving actions and sessions.
func NewDispatcher(handler ActionHandler, sessions Sessions, opts Options) *Dispatcher {
	if opts.MaxLineSize <= 0 {
		opts.MaxLineSize = DefaultMaxLineSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Dispatcher{
		actions:  handler,
		sessions: sessions,
		logger:   opts.Logger,
		version:  opts.Version,
		maxLine:  opts.MaxLineSize,
		started:  time.Now(),
	}
}

// Serve processes requests from r until EOF or a shutdown request. Only a
// read error or a failed write ends it with an error.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, d.maxLine)), d.maxLine)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp, stop := d.handleLine(ctx, line)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
		if stop {
			d.logger.Infof("shutdown requested")
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	d.logger.Infof("input closed")
	return nil
}

// handleLine produces the response to one line and reports whether the
// loop should stop afterwards.
func (d *Dispatcher) handleLine(ctx context.Context, line []byte) (resp *Response, stop bool) {
	start := time.Now()
	resp = &Response{}
	method := "invalid"

	defer func() {
		elapsed := time.Since(start)
		resp.Meta.DurationMs = elapsed.Milliseconds()
		observe(method, resp, elapsed.Seconds())
	}()

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		resp.Error = (&ProtocolError{Message: "Invalid request JSON", Err: err}).Error()
		return resp, false
	}
	resp.ID = req.ID
	method = req.Method

	stop, err := d.dispatch(ctx, &req, resp)
	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			method = "unknown"
		}
		resp.OK = false
		resp.Data = nil
		resp.Error = err.Error()
		return resp, stop
	}
	resp.OK = true
	return resp, stop
}

// dispatch routes req by method. Panics become errors.
func (d *Dispatcher) dispatch(ctx context.Context, req *Request, resp *Response) (stop bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("panic handling %s: %v\n%s", req.Method, r, debug.Stack())
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	switch req.Method {
	case MethodHealth:
		profiles := d.sessions.Names()
		if profiles == nil {
			profiles = []string{}
		}
		resp.Data = HealthReport{
			Status:   "ok",
			Version:  d.version,
			PID:      os.Getpid(),
			UptimeMs: time.Since(d.started).Milliseconds(),
			Profiles: profiles,
		}
		return false, nil

	case MethodShutdown:
		closed := d.sessions.CloseAll(ctx)
		if closed == nil {
			closed = []string{}
		}
		resp.Data = map[string]interface{}{"closed": closed}
		return true, nil

	case MethodAction:
		return false, d.runAction(ctx, req.Params, resp)

	default:
		return false, &ProtocolError{Message: "Unknown method: " + req.Method}
	}
}

func (d *Dispatcher) runAction(ctx context.Context, raw json.RawMessage, resp *Response) error {
	var params ActionParams
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return fmt.Errorf("invalid browser.action params: %w", err)
		}
	}

	res, err := d.actions.Handle(ctx, params.Request, params.BrowserConfig, params.Paths)
	resp.Meta.PerfCounters = res.Perf
	resp.Meta.Profile = res.Profile
	resp.Meta.Action = res.Action
	resp.Meta.Status = res.Status
	if err != nil {
		return err
	}
	resp.Data = res.Data
	return nil
}
