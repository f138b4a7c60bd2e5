package browser

import (
	"time"
	"unicode/utf8"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

// tabListener feeds one tab's events into its session. Events from a
// previous connection generation are ignored.
type tabListener struct {
	session    *ProfileSession
	targetID   string
	generation uint64
}

var _ driver.TabListener = (*tabListener)(nil)

func (l *tabListener) current() bool {
	s := l.session
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tabs[l.targetID]
	return ok && s.generation == l.generation
}

func (l *tabListener) Console(msg driver.ConsoleMessage) {
	if !l.current() {
		return
	}
	l.session.console.WriteOne(ConsoleRecord{
		TargetID:  l.targetID,
		Level:     msg.Level,
		Text:      msg.Text,
		Location:  msg.Location,
		Timestamp: time.Now(),
	})
}

func (l *tabListener) PageError(err error) {
	if !l.current() || err == nil {
		return
	}
	l.session.errors.WriteOne(ErrorRecord{
		TargetID:  l.targetID,
		Source:    "page",
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

func (l *tabListener) RequestStarted(req driver.Request) {
	s := l.session
	s.mu.Lock()
	if _, ok := s.tabs[l.targetID]; !ok || s.generation != l.generation {
		s.mu.Unlock()
		return
	}
	s.inflight[l.targetID]++
	rec := &RequestRecord{
		TargetID:     l.targetID,
		Method:       req.Method,
		URL:          req.URL,
		ResourceType: req.ResourceType,
		StartedAt:    time.Now(),
	}
	s.pending[req.ID] = rec
	s.mu.Unlock()

	s.requests.WriteOne(rec)
}

func (l *tabListener) RequestFinished(req driver.Request, failure string) {
	s := l.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != l.generation {
		return
	}
	if n, ok := s.inflight[l.targetID]; ok && n > 0 {
		s.inflight[l.targetID] = n - 1
	}
	if rec, ok := s.pending[req.ID]; ok {
		rec.Finished = true
		rec.Failure = failure
		delete(s.pending, req.ID)
	}
}

func (l *tabListener) Response(resp driver.Response) {
	s := l.session
	s.mu.Lock()
	if s.generation != l.generation {
		s.mu.Unlock()
		return
	}
	if rec, ok := s.pending[resp.Request.ID]; ok {
		rec.Status = resp.Status
	}
	capture := s.captureBodies
	maxChars := s.opts.BodyMaxChars
	s.mu.Unlock()

	if !capture || resp.Body == nil {
		return
	}

	// Fetching the body is a driver round trip; never on the event goroutine.
	go func() {
		body, err := resp.Body()
		if err != nil {
			return
		}
		text, truncated := truncateChars(string(body), maxChars)
		s.bodies.WriteOne(BodyRecord{
			TargetID:    l.targetID,
			URL:         resp.URL,
			Status:      resp.Status,
			ContentType: resp.ContentType,
			Body:        text,
			Truncated:   truncated,
			Timestamp:   time.Now(),
		})
	}()
}

func (l *tabListener) Popup(tab driver.Tab) {
	if tab == nil || !l.current() {
		return
	}
	s := l.session
	id := s.RegisterTab(tab)

	s.mu.Lock()
	if s.active == l.targetID {
		s.active = id
		s.readiness[id] = time.Now()
	}
	s.mu.Unlock()
}

func (l *tabListener) Closed() {
	if !l.current() {
		return
	}
	l.session.removeTarget(l.targetID)
}

// truncateChars cuts s to at most max runes.
func truncateChars(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:max]), true
}
