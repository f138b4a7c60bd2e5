package browser

import (
	"fmt"
	"strings"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

// OpenTab opens a new tab, optionally loading url, and makes it active.
func (s *ProfileSession) OpenTab(url string, operationTimeoutMs int) (TabInfo, error) {
	url = strings.TrimSpace(url)
	if url != "" {
		if err := s.Guard().CheckURL(url); err != nil {
			return TabInfo{}, &ValidationError{Err: err}
		}
	}

	bctx, err := s.Context()
	if err != nil {
		return TabInfo{}, err
	}
	tab, err := bctx.NewPage()
	if err != nil {
		return TabInfo{}, fmt.Errorf("open tab: %w", err)
	}
	id := s.RegisterTab(tab)
	if err := s.Activate(id); err != nil {
		return TabInfo{}, err
	}

	if url != "" {
		opts := driver.GotoOptions{WaitUntil: "load", Timeout: clampTimeoutMs(operationTimeoutMs)}
		if _, err := tab.Goto(url, opts); err != nil {
			return TabInfo{}, fmt.Errorf("navigate to %s: %w", url, err)
		}
		s.MarkNeedsReadiness(id)
	}

	title, _ := tab.Title() // best effort: title is informational
	return TabInfo{TargetID: id, URL: tab.URL(), Title: title, Active: true}, nil
}

// FocusTab brings a target to the front and makes it active.
func (s *ProfileSession) FocusTab(id string) error {
	id, tab, err := s.Tab(id)
	if err != nil {
		return err
	}
	if err := tab.BringToFront(); err != nil {
		return fmt.Errorf("focus %s: %w", id, err)
	}
	return s.Activate(id)
}

// CloseTab closes a target (the active one when id is empty) and returns
// its id. Bookkeeping is removed immediately rather than waiting for the
// close event.
func (s *ProfileSession) CloseTab(id string) (string, error) {
	id, tab, err := s.Tab(id)
	if err != nil {
		return "", err
	}
	if err := tab.Close(); err != nil && !tab.IsClosed() {
		return "", fmt.Errorf("close %s: %w", id, err)
	}
	s.removeTarget(id)
	return id, nil
}
