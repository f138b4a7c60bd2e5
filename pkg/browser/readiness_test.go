package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
)

func TestAwaitReadiness_SkippedWithoutGate(t *testing.T) {
	s, _, tab := newTestSession()

	report := s.AwaitReadiness(context.Background(), "t1", tab)

	assert.False(t, report.Checked)
	assert.Zero(t, tab.evalCount())
}

func TestAwaitReadiness_QuietPage(t *testing.T) {
	s, _, tab := newTestSession()
	s.MarkNeedsReadiness("t1")

	report := s.AwaitReadiness(context.Background(), "t1", tab)

	assert.True(t, report.Checked)
	assert.False(t, report.Indicators)
	assert.False(t, report.Network)
	assert.False(t, report.DOM, "DOM phase only runs after another phase triggered")
	assert.Equal(t, 1, tab.evalCount())
}

func TestAwaitReadiness_WaitsForIndicators(t *testing.T) {
	s, _, tab := newTestSession()
	tab.indicatorVisible = 3
	s.MarkNeedsReadiness("t1")

	report := s.AwaitReadiness(context.Background(), "t1", tab)

	assert.True(t, report.Indicators)
	assert.True(t, report.DOM)
	assert.Equal(t, 4, tab.indicatorChecks)
	assert.Empty(t, s.Errors(0))
}

func TestAwaitReadiness_IndicatorTimeoutIsAWarning(t *testing.T) {
	s, _, tab := newTestSession()
	tab.indicatorVisible = 1 << 20
	s.MarkNeedsReadiness("t1")

	report := s.AwaitReadiness(context.Background(), "t1", tab)

	assert.True(t, report.Checked)
	errs := s.Errors(0)
	if assert.Len(t, errs, 1) {
		assert.Equal(t, "sidecar", errs[0].Source)
		assert.Contains(t, errs[0].Message, "loading indicators still visible")
	}
}

func TestAwaitReadiness_WaitsForNetworkIdle(t *testing.T) {
	s, _, tab := newTestSession()
	req := driver.Request{ID: "r1", URL: "https://example.com/slow"}
	tab.events().RequestStarted(req)
	s.MarkNeedsReadiness("t1")

	go func() {
		time.Sleep(30 * time.Millisecond)
		tab.events().RequestFinished(req, "")
	}()

	start := time.Now()
	report := s.AwaitReadiness(context.Background(), "t1", tab)

	assert.True(t, report.Network)
	assert.True(t, report.DOM)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, s.Inflight("t1"))
	assert.Empty(t, s.Errors(0))
}

func TestAwaitReadiness_NetworkPhaseGatedOnInitialInflight(t *testing.T) {
	s, _, tab := newTestSession()
	req := driver.Request{ID: "r1", URL: "https://example.com/slow"}
	events := tab.events()
	events.RequestStarted(req)
	tab.indicatorVisible = 3
	tab.onIndicatorCheck = func(n int) {
		if n == 2 {
			events.RequestFinished(req, "")
		}
	}
	s.MarkNeedsReadiness("t1")

	report := s.AwaitReadiness(context.Background(), "t1", tab)

	assert.True(t, report.Indicators)
	assert.True(t, report.Network, "a request in flight at the start still triggers the network phase")
	assert.True(t, report.DOM)
	assert.Equal(t, 0, s.Inflight("t1"))
	assert.Empty(t, s.Errors(0))
}

func TestAwaitReadiness_NetworkTimeoutIsAWarning(t *testing.T) {
	s, _, tab := newTestSession()
	tab.events().RequestStarted(driver.Request{ID: "r1", URL: "https://example.com/stream"})
	s.MarkNeedsReadiness("t1")

	report := s.AwaitReadiness(context.Background(), "t1", tab)

	assert.True(t, report.Network)
	errs := s.Errors(0)
	if assert.Len(t, errs, 1) {
		assert.Contains(t, errs[0].Message, "network not idle")
	}
}
