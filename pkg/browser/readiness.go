package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

// ReadinessOptions bounds each phase of the readiness check.
type ReadinessOptions struct {
	IndicatorPoll time.Duration
	IndicatorMax  time.Duration
	IdleWindow    time.Duration
	IdleMax       time.Duration
	IdlePoll      time.Duration
	QuietWindow   time.Duration
	QuietMax      time.Duration
}

// DefaultReadinessOptions returns the standard phase bounds.
func DefaultReadinessOptions() ReadinessOptions {
	return ReadinessOptions{
		IndicatorPoll: 150 * time.Millisecond,
		IndicatorMax:  4 * time.Second,
		IdleWindow:    400 * time.Millisecond,
		IdleMax:       5 * time.Second,
		IdlePoll:      50 * time.Millisecond,
		QuietWindow:   300 * time.Millisecond,
		QuietMax:      3 * time.Second,
	}
}

// ReadinessReport tells which phases ran and how long the check took.
type ReadinessReport struct {
	Checked    bool  `json:"checked"`
	Indicators bool  `json:"indicators"`
	Network    bool  `json:"network"`
	DOM        bool  `json:"dom"`
	WaitedMs   int64 `json:"waited_ms"`
}

// AwaitReadiness runs the readiness phases when the target's gate is armed.
// The gate is consumed by this call. Every phase is best effort.
func (s *ProfileSession) AwaitReadiness(ctx context.Context, targetID string, tab driver.Tab) ReadinessReport {
	var report ReadinessReport
	if !s.ConsumeReadiness(targetID) {
		return report
	}

	start := time.Now()
	opts := s.opts.Readiness
	report.Checked = true
	inflightAtStart := s.Inflight(targetID)

	indicators, err := s.waitIndicators(ctx, tab, opts)
	if err != nil {
		s.warn(targetID, "readiness: loading indicator check failed: %v", err)
	}
	report.Indicators = indicators

	if inflightAtStart > 0 {
		report.Network = true
		if !s.waitNetworkIdle(ctx, targetID, opts) {
			s.warn(targetID, "readiness: network not idle after %s", opts.IdleMax)
		}
	}

	if report.Indicators || report.Network {
		report.DOM = true
		quiet, err := waitDOMQuiet(tab, opts)
		switch {
		case err != nil:
			s.warn(targetID, "readiness: DOM quiescence check failed: %v", err)
		case !quiet:
			s.warn(targetID, "readiness: DOM still changing after %s", opts.QuietMax)
		}
	}

	report.WaitedMs = time.Since(start).Milliseconds()
	return report
}

// waitIndicators polls for visible loading indicators until none remain.
// It reports whether any were seen.
func (s *ProfileSession) waitIndicators(ctx context.Context, tab driver.Tab, opts ReadinessOptions) (bool, error) {
	deadline := time.Now().Add(opts.IndicatorMax)
	seen := false

	ticker := time.NewTicker(opts.IndicatorPoll)
	defer ticker.Stop()

	for {
		var visible bool
		if err := evalJSON(tab, loadingIndicatorScript, nil, &visible); err != nil {
			return seen, err
		}
		if !visible {
			return seen, nil
		}
		seen = true
		if time.Now().After(deadline) {
			return seen, fmt.Errorf("loading indicators still visible after %s", opts.IndicatorMax)
		}

		select {
		case <-ctx.Done():
			return seen, ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitNetworkIdle waits until the target has no in-flight requests for the
// idle window.
func (s *ProfileSession) waitNetworkIdle(ctx context.Context, targetID string, opts ReadinessOptions) bool {
	deadline := time.Now().Add(opts.IdleMax)
	var idleSince time.Time

	ticker := time.NewTicker(opts.IdlePoll)
	defer ticker.Stop()

	for {
		now := time.Now()
		if s.Inflight(targetID) == 0 {
			if idleSince.IsZero() {
				idleSince = now
			}
			if now.Sub(idleSince) >= opts.IdleWindow {
				return true
			}
		} else {
			idleSince = time.Time{}
		}
		if now.After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func waitDOMQuiet(tab driver.Tab, opts ReadinessOptions) (bool, error) {
	var out struct {
		Quiet bool `json:"quiet"`
	}
	arg := map[string]interface{}{
		"window": opts.QuietWindow.Milliseconds(),
		"max":    opts.QuietMax.Milliseconds(),
	}
	if err := evalJSON(tab, domQuietScript, arg, &out); err != nil {
		return false, err
	}
	return out.Quiet, nil
}

// evalJSON runs a script that returns JSON.stringify output and decodes it.
func evalJSON(tab driver.Tab, script string, arg interface{}, out interface{}) error {
	raw, err := tab.Evaluate(script, arg)
	if err != nil {
		return err
	}
	text, ok := raw.(string)
	if !ok {
		return fmt.Errorf("script returned %T, expected a JSON string", raw)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}

const loadingIndicatorScript = `() => {
  const selectors = [
    '[aria-busy="true"]',
    '[role="progressbar"]',
    '.spinner', '.loading', '.loader', '.skeleton',
    '[class*="spinner"]', '[class*="loading"]', '[data-loading="true"]'
  ];
  const visible = (el) => {
    const style = window.getComputedStyle(el);
    if (style.display === 'none' || style.visibility === 'hidden' || Number(style.opacity) === 0) return false;
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  };
  for (const sel of selectors) {
    let nodes;
    try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
    for (const el of nodes) {
      if (visible(el)) return JSON.stringify(true);
    }
  }
  return JSON.stringify(false);
}`

const domQuietScript = `(opts) => new Promise((resolve) => {
  const started = Date.now();
  let last = Date.now();
  const significant = (r) => {
    if (r.type === 'childList') return r.addedNodes.length > 0 || r.removedNodes.length > 0;
    if (r.type === 'characterData') return true;
    if (r.type === 'attributes' && r.target.nodeType === 1) {
      const b = r.target.getBoundingClientRect();
      return b.width > 0 && b.height > 0;
    }
    return false;
  };
  const observer = new MutationObserver((records) => {
    if (records.some(significant)) last = Date.now();
  });
  observer.observe(document.documentElement || document, { childList: true, subtree: true, characterData: true, attributes: true });
  const tick = () => {
    const now = Date.now();
    if (now - last >= opts.window) { observer.disconnect(); resolve(JSON.stringify({ quiet: true })); return; }
    if (now - started >= opts.max) { observer.disconnect(); resolve(JSON.stringify({ quiet: false })); return; }
    setTimeout(tick, 50);
  };
  setTimeout(tick, 50);
})`
