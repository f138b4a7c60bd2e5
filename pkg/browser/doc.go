// Package browser drives Chromium-family browsers over the DevTools
// protocol on behalf of the sidecar.
//
// # Architecture
//
// The package is built around three core concepts:
//
//  1. ProfileSession: the live state of one named profile (connection,
//     tabs, ref tables, observation buffers and sticky emulation settings)
//  2. SessionRegistry: the process-wide set of profile sessions, keyed by
//     profile name and created lazily
//  3. driver: a narrow interface over the automation library so session
//     logic can be tested without a real browser
//
// # Session Lifecycle
//
//  1. EnsureContext attaches to cdp_url, or launches executable_path with a
//     fresh debugging port and waits for its control endpoint
//  2. Existing tabs are registered with stable ids (t1, t2, ...) that are
//     never reused, even across reconnects
//  3. A disconnect invalidates everything tied to the old connection;
//     the next request reconnects and reapplies emulation overrides
//  4. Stop and CloseAll tear sessions down and kill owned browsers
//
// # Refs
//
// Snapshot ranks interactive elements, tags each with a data-sidecar-ref
// attribute and stores a ref table per target. Act resolves refs against
// that table before touching the page, then runs the strategy cascade:
// selectors, role and name, label, coordinates and finally an in-page DOM
// action. Every attempt is recorded so an exhausted cascade reports what
// was tried.
//
// # Readiness
//
// Navigations and state-changing actions arm a per-target gate. The next
// snapshot or action consumes it and waits, best effort, for loading
// indicators to disappear, the network to go idle and the DOM to settle.
package browser
