// File: internal/mcp/metrics.go
package mcp

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts protocol traffic. Each instance owns its registry so several
// servers can coexist in one process.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	toolCalls *prometheus.CounterVec
}

// NewMetrics registers the MCP collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swapflow",
			Subsystem: "mcp",
			Name:      "requests_total",
			Help:      "JSON-RPC requests handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "swapflow",
			Subsystem: "mcp",
			Name:      "request_duration_seconds",
			Help:      "Time spent handling a JSON-RPC request.",
			Buckets:   []float64{.005, .05, .25, 1, 5, 30},
		}, []string{"method"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swapflow",
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "Tool invocations, by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.toolCalls)
	return m
}

func (m *Metrics) observe(method, outcome string, d time.Duration) {
	m.requests.WithLabelValues(method, outcome).Inc()
	if d > 0 {
		m.latency.WithLabelValues(method).Observe(d.Seconds())
	}
}

func (m *Metrics) toolCall(tool, outcome string) {
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
