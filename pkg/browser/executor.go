package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/lo"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

// Action kinds accepted by Act.
const (
	KindClick  = "click"
	KindType   = "type"
	KindHover  = "hover"
	KindSelect = "select"
	KindPress  = "press"
	KindScroll = "scroll"
	KindWait   = "wait"
	KindDrag   = "drag"
)

// Methods reported in ActResult.Method.
const (
	MethodSelector         = "selector"
	MethodFallbackSelector = "fallback_selector"
	MethodRoleName         = "role_name"
	MethodLabel            = "label"
	MethodCoordinates      = "coordinates"
	MethodDOM              = "dom"
	MethodKeyboard         = "keyboard"
	MethodWheel            = "wheel"
)

// MaxWaitMs caps a fixed-delay wait.
const MaxWaitMs = 60000

// urlPollInterval is how often a URL wait re-reads the tab's location.
const urlPollInterval = 100 * time.Millisecond

// ActRequest is one interaction. It is decoded from caller JSON both for a
// single act and for every act_batch item.
type ActRequest struct {
	Kind     string   `json:"kind"`
	Ref      string   `json:"ref,omitempty"`
	Selector string   `json:"selector,omitempty"`
	Role     string   `json:"role,omitempty"`
	Name     string   `json:"name,omitempty"`
	Text     string   `json:"text,omitempty"`
	Submit   bool     `json:"submit,omitempty"`
	Values   []string `json:"values,omitempty"`
	Value    string   `json:"value,omitempty"`
	Key      string   `json:"key,omitempty"`
	DX       float64  `json:"dx,omitempty"`
	DY       float64  `json:"dy,omitempty"`
	URL      string   `json:"url,omitempty"`
	Ms       int      `json:"ms,omitempty"`
	FromRef  string   `json:"from_ref,omitempty"`
	ToRef    string   `json:"to_ref,omitempty"`

	AllowCoordinateFallback bool   `json:"allow_coordinate_fallback,omitempty"`
	Strategy                string `json:"strategy,omitempty"`
	TimeoutMs               int    `json:"timeout_ms,omitempty"`
}

// Validate normalizes the kind and checks the parameters it requires.
func (r *ActRequest) Validate() error {
	r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
	if r.Kind == "fill" {
		r.Kind = KindType
	}
	if _, err := ParseStrategy(r.Strategy); err != nil {
		return err
	}
	if r.TimeoutMs < 0 {
		return Validationf("timeout_ms must not be negative")
	}

	needsTarget := func() error {
		if strings.TrimSpace(r.Ref) == "" && strings.TrimSpace(r.Selector) == "" {
			return Validationf("%s requires ref or selector", r.Kind)
		}
		return nil
	}

	switch r.Kind {
	case KindClick, KindHover, KindType:
		return needsTarget()
	case KindSelect:
		if err := needsTarget(); err != nil {
			return err
		}
		if len(r.Values) == 0 && r.Value == "" {
			return Validationf("select requires values or value")
		}
	case KindPress:
		if strings.TrimSpace(r.Key) == "" {
			return Validationf("press requires key")
		}
	case KindScroll:
		if r.Ref == "" && r.Selector == "" && r.DX == 0 && r.DY == 0 {
			return Validationf("scroll requires dx/dy, ref or selector")
		}
	case KindWait:
		if r.Selector == "" && r.URL == "" && r.Ms <= 0 {
			return Validationf("wait requires selector, url or ms")
		}
		if r.Ms > MaxWaitMs {
			return Validationf("ms must be at most %d", MaxWaitMs)
		}
		if r.URL != "" {
			if _, err := glob.Compile(r.URL); err != nil {
				return &ValidationError{Message: fmt.Sprintf("invalid url pattern %q", r.URL), Err: err}
			}
		}
	case KindDrag:
		if r.FromRef == "" || r.ToRef == "" {
			return Validationf("drag requires from_ref and to_ref")
		}
	case "":
		return Validationf("kind is required")
	default:
		return Validationf("unknown act kind %q", r.Kind)
	}
	return nil
}

// ActConfig carries the host policy an action's strategy derives from.
type ActConfig struct {
	Preset             string
	OperationTimeoutMs int
}

// ActResult is the outcome of one interaction.
type ActResult struct {
	Kind          string       `json:"kind"`
	Method        string       `json:"method,omitempty"`
	Selector      string       `json:"selector,omitempty"`
	FallbackCount int          `json:"fallback_count"`
	TargetID      string       `json:"target_id"`
	Ref           string       `json:"ref,omitempty"`
	Strategy      Strategy     `json:"strategy"`
	Selected      []string     `json:"selected,omitempty"`
	WaitedMs      int64        `json:"waited_ms,omitempty"`
	Perf          PerfCounters `json:"-"`
}

// stage is one way of locating and acting on an element.
type stage struct {
	method   string
	selector string
	budget   time.Duration
	run      func(timeout time.Duration) error
}

// Act performs one interaction on a target. The returned result carries
// performance counters even when err is non-nil.
func (s *ProfileSession) Act(ctx context.Context, targetID string, req ActRequest, cfg ActConfig) (ActResult, error) {
	start := time.Now()
	res := ActResult{Kind: req.Kind, Ref: req.Ref}

	finish := func(err error) (ActResult, error) {
		res.Perf.FallbackCount = res.FallbackCount
		res.Perf.TotalMs = time.Since(start).Milliseconds()
		return res, err
	}

	if err := req.Validate(); err != nil {
		return finish(err)
	}
	res.Kind = req.Kind

	explicit, _ := ParseStrategy(req.Strategy)
	strategy := DeriveStrategy(explicit, cfg.Preset, req.TimeoutMs, cfg.OperationTimeoutMs)
	res.Strategy = strategy.Strategy

	id, tab, err := s.Tab(targetID)
	if err != nil {
		return finish(err)
	}
	res.TargetID = id

	// References resolve before anything reaches the page.
	var (
		entry      *RefEntry
		candidates []string
	)
	if req.Kind == KindDrag {
		if _, _, err := s.dragEndpoints(id, req); err != nil {
			return finish(err)
		}
	} else if req.Ref != "" || req.Selector != "" {
		entry, candidates, err = s.resolveCandidates(id, req.Ref, req.Selector)
		if err != nil {
			return finish(err)
		}
	}

	s.AwaitReadiness(ctx, id, tab)
	res.Perf.ResolveMs = time.Since(start).Milliseconds()

	var stages []stage
	switch req.Kind {
	case KindClick, KindType:
		stages = cascadeStages(tab, req, entry, candidates, strategy)
	case KindHover, KindSelect:
		stages = singleStages(tab, req, candidates, strategy, &res)
	case KindPress:
		stages = []stage{{method: MethodKeyboard, budget: strategy.Primary, run: func(time.Duration) error { return tab.KeyPress(req.Key) }}}
	case KindScroll:
		if len(candidates) > 0 {
			stages = singleStages(tab, req, candidates, strategy, &res)
		} else {
			stages = []stage{{method: MethodWheel, budget: strategy.Primary, run: func(time.Duration) error { return tab.MouseWheel(req.DX, req.DY) }}}
		}
	case KindWait:
		return finish(s.wait(ctx, tab, req, strategy, &res))
	case KindDrag:
		from, to, _ := s.dragEndpoints(id, req)
		stages = []stage{{
			method:   MethodSelector,
			selector: from.Selector,
			budget:   strategy.Total,
			run: func(timeout time.Duration) error {
				return tab.Locator(from.Selector).DragTo(tab.Locator(to.Selector), timeout)
			},
		}}
	}

	if err := s.runStages(ctx, id, req.Kind, stages, &res); err != nil {
		return finish(err)
	}

	if req.Kind == KindType && req.Submit {
		if err := tab.KeyPress("Enter"); err != nil {
			return finish(fmt.Errorf("submit: %w", err))
		}
	}
	return finish(nil)
}

// runStages tries each stage in order and stops at the first success.
func (s *ProfileSession) runStages(ctx context.Context, targetID, kind string, stages []stage, res *ActResult) error {
	var attempts []Attempt

	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, Attempt{Method: st.method, Selector: st.selector, Error: err.Error()})
			break
		}

		began := time.Now()
		err := st.run(st.budget)
		elapsed := time.Since(began).Milliseconds()

		if err == nil {
			res.Perf.ActionMs += elapsed
			res.Method = st.method
			res.Selector = st.selector
			res.FallbackCount = len(attempts)
			return nil
		}

		res.Perf.LocateMs += elapsed
		s.logger.Debugf("%s via %s %s failed: %v", kind, st.method, st.selector, err)
		attempts = append(attempts, Attempt{Method: st.method, Selector: st.selector, Error: err.Error()})
	}

	res.FallbackCount = len(attempts)
	return &ActionExhaustionError{Kind: kind, Attempts: attempts}
}

// resolveCandidates turns a ref and/or selector into the ordered, deduplicated
// candidate selector list. An unknown ref is an error unless a selector is
// also given.
func (s *ProfileSession) resolveCandidates(targetID, ref, selector string) (*RefEntry, []string, error) {
	var entry *RefEntry
	if ref != "" {
		if e, ok := s.Refs(targetID)[ref]; ok {
			entry = &e
		} else if selector == "" {
			return nil, nil, unknownRefError(ref)
		}
	}

	var candidates []string
	if selector != "" {
		candidates = append(candidates, selector)
	}
	if entry != nil {
		candidates = append(candidates, entry.Selector)
		candidates = append(candidates, entry.Fallbacks...)
	}
	candidates = lo.Compact(lo.Uniq(candidates))
	return entry, candidates, nil
}

func (s *ProfileSession) dragEndpoints(targetID string, req ActRequest) (RefEntry, RefEntry, error) {
	refs := s.Refs(targetID)
	from, ok := refs[req.FromRef]
	if !ok {
		return RefEntry{}, RefEntry{}, unknownRefError(req.FromRef)
	}
	to, ok := refs[req.ToRef]
	if !ok {
		return RefEntry{}, RefEntry{}, unknownRefError(req.ToRef)
	}
	return from, to, nil
}

// cascadeStages builds the click/type cascade.
func cascadeStages(tab driver.Tab, req ActRequest, entry *RefEntry, candidates []string, strategy ActStrategyConfig) []stage {
	act := func(loc driver.Locator, timeout time.Duration) error {
		if req.Kind == KindType {
			return loc.Fill(req.Text, timeout)
		}
		return loc.Click(timeout)
	}

	var stages []stage
	for i, sel := range candidates {
		method, budget := MethodSelector, strategy.Primary
		if i > 0 {
			method, budget = MethodFallbackSelector, strategy.Fallback
		}
		stages = append(stages, stage{
			method:   method,
			selector: sel,
			budget:   budget,
			run:      func(timeout time.Duration) error { return act(tab.Locator(sel), timeout) },
		})
	}

	role, name := req.Role, req.Name
	if entry != nil {
		role = lo.Ternary(role != "", role, entry.Role)
		name = lo.Ternary(name != "", name, lo.Ternary(entry.Name != "", entry.Name, entry.Text))
	}
	if role != "" && role != "generic" && name != "" {
		stages = append(stages, stage{
			method: MethodRoleName,
			budget: strategy.Semantic,
			run:    func(timeout time.Duration) error { return act(tab.ByRole(role, name), timeout) },
		})
	}
	if name != "" {
		stages = append(stages, stage{
			method: MethodLabel,
			budget: strategy.Semantic,
			run:    func(timeout time.Duration) error { return act(tab.ByLabel(name), timeout) },
		})
	}

	if req.Kind == KindClick && req.AllowCoordinateFallback && entry != nil {
		box := entry.BBox
		stages = append(stages, stage{
			method: MethodCoordinates,
			budget: strategy.Fallback,
			run: func(time.Duration) error {
				var pt struct {
					X float64 `json:"x"`
					Y float64 `json:"y"`
				}
				if err := evalJSON(tab, scrollToPointScript, map[string]interface{}{"x": box.CenterX, "y": box.CenterY}, &pt); err != nil {
					return err
				}
				return tab.MouseClick(pt.X, pt.Y)
			},
		})
	}

	if len(candidates) > 0 {
		stages = append(stages, stage{
			method: MethodDOM,
			budget: strategy.Fallback,
			run: func(time.Duration) error {
				var out struct {
					OK       bool   `json:"ok"`
					Selector string `json:"selector"`
				}
				arg := map[string]interface{}{"selectors": candidates, "kind": req.Kind, "text": req.Text}
				if err := evalJSON(tab, domActScript, arg, &out); err != nil {
					return err
				}
				if !out.OK {
					return errors.New("no candidate selector matched an element")
				}
				return nil
			},
		})
	}
	return stages
}

// singleStages tries each candidate with the fallback budget.
func singleStages(tab driver.Tab, req ActRequest, candidates []string, strategy ActStrategyConfig, res *ActResult) []stage {
	values := req.Values
	if len(values) == 0 && req.Value != "" {
		values = []string{req.Value}
	}

	stages := make([]stage, 0, len(candidates))
	for _, sel := range candidates {
		stages = append(stages, stage{
			method:   MethodSelector,
			selector: sel,
			budget:   strategy.Fallback,
			run: func(timeout time.Duration) error {
				loc := tab.Locator(sel)
				switch req.Kind {
				case KindSelect:
					selected, err := loc.SelectOption(values, timeout)
					if err == nil {
						res.Selected = selected
					}
					return err
				case KindScroll:
					return loc.ScrollIntoView(timeout)
				default:
					return loc.Hover(timeout)
				}
			},
		})
	}
	return stages
}

// wait blocks for a selector, else a URL pattern, else a fixed delay.
func (s *ProfileSession) wait(ctx context.Context, tab driver.Tab, req ActRequest, strategy ActStrategyConfig, res *ActResult) error {
	began := time.Now()
	defer func() {
		res.WaitedMs = time.Since(began).Milliseconds()
		res.Perf.ActionMs = res.WaitedMs
	}()

	switch {
	case req.Selector != "":
		res.Method, res.Selector = MethodSelector, req.Selector
		return tab.WaitForSelector(req.Selector, strategy.Total)

	case req.URL != "":
		res.Method = "url"
		match := urlMatcher(req.URL)
		deadline := time.Now().Add(strategy.Total)
		ticker := time.NewTicker(urlPollInterval)
		defer ticker.Stop()
		for {
			if match(tab.URL()) {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("url did not match %q within %s (current %s)", req.URL, strategy.Total, tab.URL())
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}

	default:
		res.Method = "delay"
		timer := time.NewTimer(time.Duration(req.Ms) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

// urlMatcher matches a URL against a glob. A pattern without glob
// metacharacters matches any URL containing it.
func urlMatcher(pattern string) func(string) bool {
	if !strings.ContainsAny(pattern, "*?[{") {
		return func(u string) bool { return strings.Contains(u, pattern) }
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return func(string) bool { return false }
	}
	return g.Match
}

const scrollToPointScript = `(p) => {
  const vw = window.innerWidth, vh = window.innerHeight;
  let x = p.x, y = p.y;
  if (y < 0 || y >= vh) {
    window.scrollBy(0, y - vh / 2);
    y = vh / 2;
  }
  x = Math.min(Math.max(x, 1), vw - 1);
  y = Math.min(Math.max(y, 1), vh - 1);
  return JSON.stringify({ x: x, y: y });
}`

const domActScript = `(p) => {
  for (const sel of p.selectors) {
    let el = null;
    try { el = document.querySelector(sel); } catch (e) { continue; }
    if (!el) continue;
    try { el.scrollIntoView({ block: 'center', inline: 'center' }); } catch (e) {}
    if (p.kind === 'type') {
      if (typeof el.focus === 'function') el.focus();
      if ('value' in el) el.value = p.text;
      else if (el.isContentEditable) el.textContent = p.text;
      else continue;
      el.dispatchEvent(new Event('input', { bubbles: true }));
      el.dispatchEvent(new Event('change', { bubbles: true }));
    } else if (typeof el.click === 'function') {
      el.click();
    } else {
      el.dispatchEvent(new MouseEvent('click', { bubbles: true, cancelable: true, view: window }));
    }
    return JSON.stringify({ ok: true, selector: sel });
  }
  return JSON.stringify({ ok: false });
}`
