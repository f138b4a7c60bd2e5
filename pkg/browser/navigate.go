package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

// Navigation defaults and bounds.
const (
	DefaultMaxLinks    = 30
	MaxLinks           = 200
	DefaultContentChar = 12000
	MaxContentChars    = 200000
)

var waitUntilStates = []string{"load", "domcontentloaded", "networkidle", "commit"}

// NavigateRequest loads a URL into a target.
type NavigateRequest struct {
	URL          string `json:"url"`
	WaitUntil    string `json:"wait_until,omitempty"`
	TimeoutMs    int    `json:"timeout_ms,omitempty"`
	IncludeLinks *bool  `json:"include_links,omitempty"`
	MaxLinks     int    `json:"max_links,omitempty"`
	MaxChars     int    `json:"max_chars,omitempty"`
}

// Validate checks the URL and normalizes the optional limits.
func (r *NavigateRequest) Validate() error {
	r.URL = strings.TrimSpace(r.URL)
	if r.URL == "" {
		return Validationf("url is required")
	}
	r.WaitUntil = strings.ToLower(strings.TrimSpace(r.WaitUntil))
	if r.WaitUntil == "" {
		r.WaitUntil = "load"
	}
	if !lo.Contains(waitUntilStates, r.WaitUntil) {
		return Validationf("wait_until must be one of %s", strings.Join(waitUntilStates, ", "))
	}
	if r.TimeoutMs < 0 {
		return Validationf("timeout_ms must not be negative")
	}

	if r.MaxLinks <= 0 {
		r.MaxLinks = DefaultMaxLinks
	}
	r.MaxLinks = lo.Clamp(r.MaxLinks, 1, MaxLinks)

	if r.MaxChars <= 0 {
		r.MaxChars = DefaultContentChar
	}
	r.MaxChars = lo.Clamp(r.MaxChars, 1, MaxContentChars)
	return nil
}

func (r NavigateRequest) includeLinks() bool {
	return r.IncludeLinks == nil || *r.IncludeLinks
}

// Link is one anchor found on a page.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// NavigateResult describes the loaded page.
type NavigateResult struct {
	TargetID         string `json:"target_id"`
	URL              string `json:"url"`
	Status           int    `json:"status"`
	ContentType      string `json:"content_type,omitempty"`
	Title            string `json:"title"`
	Links            []Link `json:"links"`
	Content          string `json:"content"`
	ContentTruncated bool   `json:"content_truncated"`
}

// Navigate loads a URL into a target, arms its readiness gate and extracts
// the page text and links.
func (s *ProfileSession) Navigate(ctx context.Context, targetID string, req NavigateRequest, operationTimeoutMs int) (*NavigateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.Guard().CheckURL(req.URL); err != nil {
		return nil, &ValidationError{Err: err}
	}

	id, tab, err := s.Tab(targetID)
	if err != nil {
		return nil, err
	}

	timeoutMs := req.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = operationTimeoutMs
	}
	opts := driver.GotoOptions{WaitUntil: req.WaitUntil}
	if ms := clampTimeoutMs(timeoutMs); ms > 0 {
		opts.Timeout = ms
	}

	resp, err := tab.Goto(req.URL, opts)
	s.MarkNeedsReadiness(id)
	if err != nil {
		return nil, fmt.Errorf("navigate to %s: %w", req.URL, err)
	}

	out := &NavigateResult{TargetID: id, URL: tab.URL(), Links: []Link{}}
	if resp != nil {
		out.Status = resp.Status
		out.ContentType = resp.ContentType
	}
	out.Title, _ = tab.Title() // best effort: title is informational

	var page struct {
		Content   string `json:"content"`
		Truncated bool   `json:"truncated"`
		Links     []Link `json:"links"`
	}
	arg := map[string]interface{}{
		"maxChars": req.MaxChars,
		"maxLinks": lo.Ternary(req.includeLinks(), req.MaxLinks, 0),
	}
	if s.bestEffort(id, "extract page content", func() error { return evalJSON(tab, pageContentScript, arg, &page) }) {
		out.Content = page.Content
		out.ContentTruncated = page.Truncated
		if len(page.Links) > 0 {
			out.Links = page.Links
		}
	}
	return out, nil
}

const pageContentScript = `(p) => {
  const body = document.body;
  let text = body ? (body.innerText || body.textContent || '') : '';
  text = text.replace(/[ \t]+\n/g, '\n').replace(/\n{3,}/g, '\n\n').trim();
  const chars = Array.from(text);
  const truncated = chars.length > p.maxChars;
  const content = truncated ? chars.slice(0, p.maxChars).join('') : text;

  const links = [];
  const seen = new Set();
  if (p.maxLinks > 0) {
    for (const a of document.querySelectorAll('a[href]')) {
      if (links.length >= p.maxLinks) break;
      const href = a.href;
      if (!href || href.startsWith('javascript:') || seen.has(href)) continue;
      seen.add(href);
      const label = (a.innerText || a.getAttribute('aria-label') || a.title || '').replace(/\s+/g, ' ').trim();
      links.push({ text: label.slice(0, 120), href: href });
    }
  }
  return JSON.stringify({ content: content, truncated: truncated, links: links });
}`
