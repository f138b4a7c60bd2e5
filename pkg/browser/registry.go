package browser

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
	"github.com/entrhq/browser-sidecar/pkg/config"
	"github.com/entrhq/browser-sidecar/pkg/logging"
)

// Options tunes buffer sizes and lifecycle timeouts of every profile session.
type Options struct {
	ConsoleBuffer  int
	ErrorBuffer    int
	RequestBuffer  int
	BodyBuffer     int
	BodyMaxChars   int
	ReadinessTTL   time.Duration
	LaunchTimeout  time.Duration
	LaunchPoll     time.Duration
	ConnectTimeout time.Duration
	Readiness      ReadinessOptions
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		ConsoleBuffer:  DefaultConsoleBuffer,
		ErrorBuffer:    DefaultErrorBuffer,
		RequestBuffer:  DefaultRequestBuffer,
		BodyBuffer:     DefaultBodyBuffer,
		BodyMaxChars:   DefaultBodyMaxChars,
		ReadinessTTL:   DefaultReadinessTTL,
		LaunchTimeout:  DefaultLaunchTimeout,
		LaunchPoll:     DefaultLaunchPoll,
		ConnectTimeout: DefaultConnectTimeout,
		Readiness:      DefaultReadinessOptions(),
	}
}

// OptionsFromSettings maps process settings onto session options.
func OptionsFromSettings(s config.Settings) Options {
	opts := DefaultOptions()
	opts.ConsoleBuffer = s.ConsoleBufferSize
	opts.ErrorBuffer = s.ErrorBufferSize
	opts.RequestBuffer = s.RequestBufferSize
	opts.BodyBuffer = s.BodyBufferSize
	opts.BodyMaxChars = s.BodyMaxChars
	opts.ReadinessTTL = s.ReadinessTTL
	opts.LaunchTimeout = s.LaunchTimeout
	opts.LaunchPoll = s.LaunchPollEvery
	opts.ConnectTimeout = s.ConnectTimeout
	return opts
}

// SessionRegistry owns every profile session of the process. It is created
// once at startup and handed to the request handlers.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*ProfileSession
	driver   driver.Driver
	opts     Options
	logger   *logging.Logger
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(drv driver.Driver, opts Options, logger *logging.Logger) *SessionRegistry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SessionRegistry{
		sessions: make(map[string]*ProfileSession),
		driver:   drv,
		opts:     opts,
		logger:   logger,
	}
}

// Driver returns the automation driver.
func (r *SessionRegistry) Driver() driver.Driver {
	return r.driver
}

// Session returns the named session, creating it on first reference.
func (r *SessionRegistry) Session(name string) *ProfileSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[name]; ok {
		return s
	}
	s := newProfileSession(name, r.opts, r.logger.Named("profile").With("profile", name))
	r.sessions[name] = s
	return s
}

// Lookup returns the named session without creating it.
func (r *SessionRegistry) Lookup(name string) (*ProfileSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	return s, ok
}

// Names returns the names of every known session, sorted.
func (r *SessionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop closes a profile's connection and any browser it launched.
// It reports whether the profile had a live connection.
func (r *SessionRegistry) Stop(name string) bool {
	s, ok := r.Lookup(name)
	if !ok {
		return false
	}
	return s.close()
}

// CloseAll stops every session concurrently and returns the names of those
// that were connected.
func (r *SessionRegistry) CloseAll(ctx context.Context) []string {
	names := r.Names()
	closed := make([]bool, len(names))

	g, _ := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			closed[i] = r.Stop(name)
			return nil
		})
	}
	_ = g.Wait() // Stop never fails

	var out []string
	for i, name := range names {
		if closed[i] {
			out = append(out, name)
		}
	}
	return out
}
