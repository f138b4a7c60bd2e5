package browser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
	"github.com/entrhq/browser-sidecar/pkg/buffers"
	"github.com/entrhq/browser-sidecar/pkg/logging"
	"github.com/entrhq/browser-sidecar/pkg/security/network"
)

// ProfileSession is the connection and tab state of one named profile.
//
// Tab events arrive on the driver's goroutine, so every map and counter is
// guarded by mu. Driver calls are never made while holding mu.
type ProfileSession struct {
	Name string

	logger *logging.Logger
	opts   Options

	mu         sync.Mutex
	conn       driver.Connection
	bctx       driver.BrowserContext
	mode       ConnectionMode
	endpoint   string
	process    *browserProcess
	connected  bool
	generation uint64 // bumped on every attach and teardown

	tabs      map[string]driver.Tab
	ids       map[driver.Tab]string
	refs      map[string]RefTable
	nextID    int
	active    string
	readiness map[string]time.Time
	inflight  map[string]int
	pending   map[string]*RequestRecord

	captureBodies  bool
	guard          *network.Guard
	routeInstalled bool
	tracing        bool
	overrides      Overrides

	console  *buffers.RingBuffer[ConsoleRecord]
	errors   *buffers.RingBuffer[ErrorRecord]
	requests *buffers.RingBuffer[*RequestRecord]
	bodies   *buffers.RingBuffer[BodyRecord]
}

func newProfileSession(name string, opts Options, logger *logging.Logger) *ProfileSession {
	s := &ProfileSession{
		Name:     name,
		logger:   logger,
		opts:     opts,
		console:  buffers.NewRingBuffer[ConsoleRecord](opts.ConsoleBuffer),
		errors:   buffers.NewRingBuffer[ErrorRecord](opts.ErrorBuffer),
		requests: buffers.NewRingBuffer[*RequestRecord](opts.RequestBuffer),
		bodies:   buffers.NewRingBuffer[BodyRecord](opts.BodyBuffer),
	}
	s.resetTargetsLocked()
	return s
}

// resetTargetsLocked clears every per-target structure. The id counter is
// kept so ids never repeat within the process.
func (s *ProfileSession) resetTargetsLocked() {
	s.tabs = make(map[string]driver.Tab)
	s.ids = make(map[driver.Tab]string)
	s.refs = make(map[string]RefTable)
	s.readiness = make(map[string]time.Time)
	s.inflight = make(map[string]int)
	s.pending = make(map[string]*RequestRecord)
	s.active = ""
}

// SessionStatus is a point-in-time view of a profile session.
type SessionStatus struct {
	Profile        string         `json:"profile"`
	Connected      bool           `json:"connected"`
	Mode           ConnectionMode `json:"mode,omitempty"`
	Endpoint       string         `json:"endpoint,omitempty"`
	ActiveTargetID string         `json:"active_target_id,omitempty"`
	Tabs           int            `json:"tabs"`
	Pid            int            `json:"pid,omitempty"`
	Tracing        bool           `json:"tracing"`
	CaptureBodies  bool           `json:"capture_response_bodies"`
}

// Status returns the session status.
func (s *ProfileSession) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionStatus{
		Profile:        s.Name,
		Connected:      s.connected,
		Mode:           s.mode,
		Endpoint:       s.endpoint,
		ActiveTargetID: s.active,
		Tabs:           len(s.tabs),
		Pid:            s.process.Pid(),
		Tracing:        s.tracing,
		CaptureBodies:  s.captureBodies,
	}
}

// Connected reports whether the session believes it is attached.
func (s *ProfileSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Context returns the browser context, or ErrNotConnected.
func (s *ProfileSession) Context() (driver.BrowserContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.bctx == nil {
		return nil, ErrNotConnected
	}
	return s.bctx, nil
}

// RegisterTab records a tab and returns its target id. Registering a known
// tab returns its existing id. The first tab becomes active.
func (s *ProfileSession) RegisterTab(tab driver.Tab) string {
	s.mu.Lock()
	if id, ok := s.ids[tab]; ok {
		s.mu.Unlock()
		return id
	}

	s.nextID++
	id := "t" + strconv.Itoa(s.nextID)
	s.tabs[id] = tab
	s.ids[tab] = id
	s.inflight[id] = 0
	if s.active == "" {
		s.active = id
	}
	gen := s.generation
	s.mu.Unlock()

	tab.Subscribe(&tabListener{session: s, targetID: id, generation: gen})
	return id
}

// removeTarget drops a tab and everything keyed by it. If it was active,
// the lowest remaining id becomes active.
func (s *ProfileSession) removeTarget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tab, ok := s.tabs[id]
	if !ok {
		return
	}
	delete(s.tabs, id)
	delete(s.ids, tab)
	delete(s.refs, id)
	delete(s.readiness, id)
	delete(s.inflight, id)
	for reqID, rec := range s.pending {
		if rec.TargetID == id {
			delete(s.pending, reqID)
		}
	}

	if s.active == id {
		s.active = ""
		if remaining := s.targetIDsLocked(); len(remaining) > 0 {
			s.active = remaining[0]
		}
	}
}

// targetIDsLocked returns the target ids in ascending numeric order.
func (s *ProfileSession) targetIDsLocked() []string {
	ids := make([]string, 0, len(s.tabs))
	for id := range s.tabs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return targetNum(ids[i]) < targetNum(ids[j]) })
	return ids
}

func targetNum(id string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(id, "t"))
	return n
}

// Tab resolves a target id, or the active target when id is empty.
func (s *ProfileSession) Tab(id string) (string, driver.Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = s.active
		if id == "" {
			return "", nil, ErrNoTarget
		}
	}
	tab, ok := s.tabs[id]
	if !ok {
		return "", nil, Validationf("unknown target %q", id)
	}
	return id, tab, nil
}

// ActiveTargetID returns the active target id, or "".
func (s *ProfileSession) ActiveTargetID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Activate makes id the active target and arms its readiness gate.
func (s *ProfileSession) Activate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tabs[id]; !ok {
		return Validationf("unknown target %q", id)
	}
	s.active = id
	s.readiness[id] = time.Now()
	return nil
}

// Tabs lists open tabs in ascending id order.
func (s *ProfileSession) Tabs() []TabInfo {
	s.mu.Lock()
	ids := s.targetIDsLocked()
	tabs := make([]driver.Tab, len(ids))
	for i, id := range ids {
		tabs[i] = s.tabs[id]
	}
	active := s.active
	s.mu.Unlock()

	infos := make([]TabInfo, 0, len(ids))
	for i, id := range ids {
		title, _ := tabs[i].Title() // best effort: a closing tab has no title
		infos = append(infos, TabInfo{
			TargetID: id,
			URL:      tabs[i].URL(),
			Title:    title,
			Active:   id == active,
		})
	}
	return infos
}

// MarkNeedsReadiness arms the one-shot readiness gate for a target.
func (s *ProfileSession) MarkNeedsReadiness(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabs[id]; ok {
		s.readiness[id] = time.Now()
	}
}

// ConsumeReadiness reports whether the target's gate was armed and not
// expired. The gate is deleted either way.
func (s *ProfileSession) ConsumeReadiness(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	armedAt, ok := s.readiness[id]
	if !ok {
		return false
	}
	delete(s.readiness, id)
	return time.Since(armedAt) <= s.opts.ReadinessTTL
}

// Inflight returns the number of in-flight requests of a target.
func (s *ProfileSession) Inflight(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight[id]
}

// Refs returns the target's current reference table.
func (s *ProfileSession) Refs(id string) RefTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[id]
}

// SetRefs replaces the target's reference table.
func (s *ProfileSession) SetRefs(id string, table RefTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabs[id]; ok {
		s.refs[id] = table
	}
}

// Overrides returns a copy of the pending context overrides.
func (s *ProfileSession) Overrides() Overrides {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overrides
}

// UpdateOverrides mutates the stored overrides under lock.
func (s *ProfileSession) UpdateOverrides(fn func(*Overrides)) Overrides {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.overrides)
	return s.overrides
}

// SetTracing records whether a trace is being captured.
func (s *ProfileSession) SetTracing(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.tracing
	s.tracing = on
	return was
}

// Tracing reports whether a trace is being captured.
func (s *ProfileSession) Tracing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracing
}

// SetCaptureBodies toggles response body capture.
func (s *ProfileSession) SetCaptureBodies(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captureBodies = on
}

// Guard returns the private-network guard in force.
func (s *ProfileSession) Guard() *network.Guard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guard
}

// Console returns up to limit console records, optionally filtered by level.
func (s *ProfileSession) Console(limit int, level string) []ConsoleRecord {
	level = strings.ToLower(strings.TrimSpace(level))
	entries := s.console.Filter(func(r ConsoleRecord) bool {
		return level == "" || strings.EqualFold(r.Level, level)
	})
	return lastN(entries, limit)
}

// Errors returns up to limit error records.
func (s *ProfileSession) Errors(limit int) []ErrorRecord {
	return s.errors.Last(limit)
}

// Requests returns copies of up to limit request records whose URL
// contains filter.
func (s *ProfileSession) Requests(limit int, filter string) []RequestRecord {
	all := s.requests.ReadAll()

	s.mu.Lock()
	out := make([]RequestRecord, 0, len(all))
	for _, rec := range all {
		if filter == "" || strings.Contains(rec.URL, filter) {
			out = append(out, *rec)
		}
	}
	s.mu.Unlock()

	return lastN(out, limit)
}

// Bodies returns up to limit captured bodies whose URL contains filter.
func (s *ProfileSession) Bodies(limit int, filter string) []BodyRecord {
	entries := s.bodies.Filter(func(r BodyRecord) bool {
		return filter == "" || strings.Contains(r.URL, filter)
	})
	return lastN(entries, limit)
}

// ClearConsole, ClearErrors, ClearRequests and ClearBodies empty a buffer.
func (s *ProfileSession) ClearConsole()  { s.console.Clear() }
func (s *ProfileSession) ClearErrors()   { s.errors.Clear() }
func (s *ProfileSession) ClearRequests() { s.requests.Clear() }
func (s *ProfileSession) ClearBodies()   { s.bodies.Clear() }

// warn logs a non-fatal problem and keeps it in the error buffer.
func (s *ProfileSession) warn(targetID, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Warnf("profile %s: %s", s.Name, msg)
	s.errors.WriteOne(ErrorRecord{
		TargetID:  targetID,
		Source:    "sidecar",
		Message:   msg,
		Timestamp: time.Now(),
	})
}

func lastN[T any](entries []T, n int) []T {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}
