// Package network provides the private-network policy applied to browser
// navigation and request routing. It prevents pages driven by the sidecar
// from reaching loopback, link-local and private address space unless the
// host configuration allows it.
package network

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/net/idna"
)

// BlockedError is returned when a URL targets a private network host.
type BlockedError struct {
	URL    string
	Host   string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked private network request to %s (%s): set browser.allow_private_network to allow", e.Host, e.Reason)
}

// cgnat is the shared address space of RFC 6598.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// Guard enforces the private-network policy on URLs.
// A nil Guard allows everything.
type Guard struct {
	allowPrivate bool
	allowlist    []glob.Glob // host patterns exempt from blocking
}

// NewGuard creates a guard. Allowlist entries are host glob patterns where
// '*' does not cross a '.' boundary (use "**" to match several labels).
func NewGuard(allowPrivate bool, allowlist []string) (*Guard, error) {
	g := &Guard{allowPrivate: allowPrivate}

	for _, pattern := range allowlist {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		compiled, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, fmt.Errorf("invalid private network allowlist pattern '%s': %w", pattern, err)
		}
		g.allowlist = append(g.allowlist, compiled)
	}

	return g, nil
}

// Enforcing reports whether the guard blocks anything at all.
func (g *Guard) Enforcing() bool {
	return g != nil && !g.allowPrivate
}

// CheckURL returns a *BlockedError when raw targets a private host the
// policy does not allow. Non-network schemes (about:, data:, blob:) pass.
func (g *Guard) CheckURL(raw string) error {
	if !g.Enforcing() {
		return nil
	}

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss", "ftp":
	default:
		return nil
	}

	if u.Hostname() == "" {
		return nil
	}
	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		// Names idna rejects (underscores) are still classified as typed.
		host = strings.ToLower(u.Hostname())
	}

	if g.isAllowlisted(host) {
		return nil
	}

	if reason, private := Classify(host); private {
		return &BlockedError{URL: raw, Host: host, Reason: reason}
	}
	return nil
}

func (g *Guard) isAllowlisted(host string) bool {
	for _, pattern := range g.allowlist {
		if pattern.Match(host) {
			return true
		}
	}
	return false
}

// NormalizeHost lowercases a host, strips a trailing dot and IPv6 brackets,
// and converts internationalized names to their ASCII form.
func NormalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return "", fmt.Errorf("empty host")
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	return ascii, nil
}

// Classify reports whether a normalized host is private, with a reason.
// Host names are not resolved; only literal addresses and well-known
// local names are classified.
func Classify(host string) (string, bool) {
	switch {
	case host == "localhost" || strings.HasSuffix(host, ".localhost"):
		return "loopback name", true
	case strings.HasSuffix(host, ".local"):
		return "mDNS name", true
	case strings.HasSuffix(host, ".internal"):
		return "internal name", true
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return "", false
	}
	addr = addr.Unmap()

	switch {
	case addr.IsLoopback():
		return "loopback address", true
	case addr.IsUnspecified():
		return "unspecified address", true
	case addr.IsPrivate():
		return "private address", true
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local address", true
	case addr.Is4() && cgnat.Contains(addr):
		return "shared address space", true
	}
	return "", false
}
