package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
	"github.com/entrhq/browser-sidecar/pkg/config"
	"github.com/entrhq/browser-sidecar/pkg/security/network"
)

// processStopGrace is how long a launched browser gets to exit on SIGTERM.
const processStopGrace = 3 * time.Second

// ConnectRequest carries the host configuration needed to reach a profile.
type ConnectRequest struct {
	Profile config.ProfileConfig
	Browser config.BrowserConfig
	Paths   config.Paths
}

// EnsureContext returns the named profile session with a live browser
// context, attaching or launching as needed.
func (r *SessionRegistry) EnsureContext(ctx context.Context, name string, req ConnectRequest) (*ProfileSession, error) {
	s := r.Session(name)

	if err := s.applyPolicy(req.Browser); err != nil {
		return nil, err
	}

	if s.Connected() {
		if err := s.probe(); err == nil {
			return s, s.ensureRoute()
		} else {
			s.warn("", "liveness probe failed, reconnecting: %v", err)
			s.teardown(true)
		}
	}

	if err := req.Profile.Validate(); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("profile %q", name), Err: err}
	}

	var (
		mode     = ModeAttached
		endpoint = strings.TrimSpace(req.Profile.CDPURL)
		proc     *browserProcess
	)
	if endpoint == "" {
		var err error
		proc, endpoint, err = r.launch(ctx, name, req)
		if err != nil {
			return nil, err
		}
		mode = ModeLaunched
	}

	conn, err := r.driver.Connect(ctx, endpoint, r.opts.ConnectTimeout)
	if err != nil {
		proc.stop(processStopGrace)
		return nil, &ConnectionError{Profile: name, Op: "attach", Err: err}
	}

	bctx := conn.DefaultContext()
	if bctx == nil {
		_ = conn.Close() // best effort: the connection is useless without a context
		proc.stop(processStopGrace)
		return nil, &ConnectionError{Profile: name, Op: "attach", Err: errors.New("no browser context found after attach")}
	}

	gen := s.attach(conn, bctx, mode, endpoint, proc)
	conn.OnDisconnected(func() { s.handleDisconnect(gen) })
	bctx.OnClose(func() { s.handleDisconnect(gen) })
	bctx.OnPage(func(tab driver.Tab) { s.onNewTab(gen, tab) })

	tabs, err := bctx.Pages()
	if err != nil {
		s.teardown(true)
		return nil, &ConnectionError{Profile: name, Op: "enumerate tabs", Err: err}
	}
	for _, tab := range tabs {
		s.RegisterTab(tab)
	}

	s.applyContextOverrides()

	if err := s.ensureRoute(); err != nil {
		s.teardown(true)
		return nil, &ConnectionError{Profile: name, Op: "install network guard", Err: err}
	}

	if len(tabs) == 0 {
		tab, err := bctx.NewPage()
		if err != nil {
			s.teardown(true)
			return nil, &ConnectionError{Profile: name, Op: "open initial tab", Err: err}
		}
		s.RegisterTab(tab)
	}

	s.logger.Infof("connected (%s) to %s", mode, endpoint)
	return s, nil
}

// applyPolicy refreshes the per-request policy of a session.
func (s *ProfileSession) applyPolicy(cfg config.BrowserConfig) error {
	guard, err := network.NewGuard(cfg.AllowPrivateNetwork, cfg.PrivateNetworkAllowlist)
	if err != nil {
		return &ValidationError{Message: "browser_config", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.guard = guard
	if cfg.CaptureResponseBodies {
		s.captureBodies = true
	}
	return nil
}

// ensureRoute installs the private-network route once per connection when
// the policy blocks anything.
func (s *ProfileSession) ensureRoute() error {
	s.mu.Lock()
	if s.routeInstalled || !s.guard.Enforcing() || s.bctx == nil {
		s.mu.Unlock()
		return nil
	}
	bctx := s.bctx
	s.mu.Unlock()

	err := bctx.RouteAll(func(url string) bool {
		if blockErr := s.Guard().CheckURL(url); blockErr != nil {
			s.warn("", "%v", blockErr)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.routeInstalled = true
	s.mu.Unlock()
	return nil
}

// probe checks that the connection is alive and the context usable.
func (s *ProfileSession) probe() error {
	s.mu.Lock()
	conn, bctx := s.conn, s.bctx
	s.mu.Unlock()

	if conn == nil || bctx == nil {
		return ErrNotConnected
	}
	if !conn.IsConnected() {
		return errors.New("browser reports disconnected")
	}
	if _, err := bctx.Pages(); err != nil {
		return fmt.Errorf("tab list unavailable: %w", err)
	}
	return nil
}

// attach records a fresh connection and returns its generation.
func (s *ProfileSession) attach(conn driver.Connection, bctx driver.BrowserContext, mode ConnectionMode, endpoint string, proc *browserProcess) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.conn = conn
	s.bctx = bctx
	s.mode = mode
	s.endpoint = endpoint
	s.process = proc
	s.connected = true
	s.routeInstalled = false
	s.tracing = false
	s.resetTargetsLocked()
	return s.generation
}

// teardown forgets the connection. When killProcess is set, an owned
// browser process is terminated.
func (s *ProfileSession) teardown(killProcess bool) (driver.Connection, bool) {
	s.mu.Lock()
	wasConnected := s.connected
	conn := s.conn
	proc := s.process

	s.generation++
	s.conn = nil
	s.bctx = nil
	s.connected = false
	s.process = nil
	s.routeInstalled = false
	s.tracing = false
	s.resetTargetsLocked()
	s.mu.Unlock()

	if killProcess {
		proc.stop(processStopGrace)
	}
	return conn, wasConnected
}

// close disconnects and kills any owned browser.
func (s *ProfileSession) close() bool {
	conn, wasConnected := s.teardown(true)
	if conn != nil {
		_ = conn.Close() // best effort: the browser may already be gone
	}
	return wasConnected
}

func (s *ProfileSession) handleDisconnect(gen uint64) {
	s.mu.Lock()
	stale := s.generation != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.logger.Warnf("browser disconnected")
	s.teardown(true)
}

func (s *ProfileSession) onNewTab(gen uint64, tab driver.Tab) {
	s.mu.Lock()
	stale := s.generation != gen
	s.mu.Unlock()
	if stale {
		return
	}
	id := s.RegisterTab(tab)
	go s.applyTabOverrides(id, tab)
}

// launch starts the profile's browser with remote debugging and waits for
// its control endpoint.
func (r *SessionRegistry) launch(ctx context.Context, name string, req ConnectRequest) (*browserProcess, string, error) {
	userDataDir, err := req.Paths.UserDataDir(name, req.Profile)
	if err != nil {
		return nil, "", &ValidationError{Err: err}
	}
	if err := os.MkdirAll(userDataDir, 0750); err != nil {
		return nil, "", &ConnectionError{Profile: name, Op: "prepare user data dir", Err: err}
	}

	port := req.Profile.CDPPort
	if port == 0 {
		if port, err = freePort(); err != nil {
			return nil, "", &ConnectionError{Profile: name, Op: "allocate debugging port", Err: err}
		}
	}

	args := launchArgs(port, userDataDir, req.Profile)
	proc, err := startProcess(req.Profile.ExecutablePath, args, port)
	if err != nil {
		return nil, "", &ConnectionError{Profile: name, Op: "launch", Err: err}
	}
	r.logger.Infof("launched %s for profile %s (pid %d, port %d)", req.Profile.ExecutablePath, name, proc.Pid(), port)

	endpoint, err := waitForEndpoint(ctx, fmt.Sprintf("http://127.0.0.1:%d", port), proc.done, r.opts.LaunchTimeout, r.opts.LaunchPoll)
	if err != nil {
		proc.stop(processStopGrace)
		return nil, "", &ConnectionError{Profile: name, Op: "wait for control endpoint", Err: err}
	}
	return proc, endpoint, nil
}

// launchArgs builds the Chromium command line.
func launchArgs(port int, userDataDir string, profile config.ProfileConfig) []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(port),
		"--remote-allow-origins=*",
		"--user-data-dir=" + userDataDir,
		"--no-first-run",
		"--no-default-browser-check",
	}
	if profile.Headless {
		args = append(args, "--headless=new")
	}
	args = append(args, profile.ExtraArgs...)
	return append(args, "about:blank")
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

type versionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// waitForEndpoint polls <base>/json/version at a fixed interval until it
// reports a debugger URL, the process exits, or timeout elapses.
func waitForEndpoint(ctx context.Context, base string, exited <-chan struct{}, timeout, interval time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: interval * 4}
	attempts := uint(timeout/interval) + 1

	var (
		endpoint string
		lastErr  error
	)
	err := retry.New(
		retry.Attempts(attempts),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		select {
		case <-exited:
			return retry.Unrecoverable(errors.New("browser exited before its control endpoint was ready"))
		default:
		}

		ws, err := fetchDebuggerURL(ctx, client, base)
		if err != nil {
			lastErr = err
			return err
		}
		endpoint = ws
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && lastErr != nil {
			return "", fmt.Errorf("control endpoint not ready after %s: %w", timeout, lastErr)
		}
		return "", err
	}
	return endpoint, nil
}

func fetchDebuggerURL(ctx context.Context, client *http.Client, base string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("version endpoint returned %d", resp.StatusCode)
	}

	var info versionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("invalid version response: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return "", errors.New("version response has no webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}
