package ipc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/browser-sidecar/pkg/actions"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "browser_sidecar",
		Name:      "requests_total",
		Help:      "Protocol requests by method and outcome.",
	}, []string{"method", "outcome"})
	metricActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "browser_sidecar",
		Name:      "action_duration_seconds",
		Help:      "Duration of browser actions.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"action"})
	metricFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "browser_sidecar",
		Name:      "action_fallbacks_total",
		Help:      "Locator fallbacks taken while executing actions.",
	}, []string{"action"})
)

// MetricsHandler serves the prometheus metrics.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func observe(method string, resp *Response, seconds float64) {
	outcome := "ok"
	if !resp.OK {
		outcome = "error"
	}
	metricRequests.WithLabelValues(method, outcome).Inc()

	if method != MethodAction || !actions.IsAction(resp.Meta.Action) {
		return
	}
	metricActionDuration.WithLabelValues(resp.Meta.Action).Observe(seconds)
	if resp.Meta.FallbackCount > 0 {
		metricFallbacks.WithLabelValues(resp.Meta.Action).Add(float64(resp.Meta.FallbackCount))
	}
}
