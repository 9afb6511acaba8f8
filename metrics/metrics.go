package metrics

import (
	"time"

	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of a serving plugin
type Metrics struct {
	PluginCalls        *prometheus.CounterVec
	PluginCallDuration *prometheus.HistogramVec
	PluginInflight     *prometheus.GaugeVec
	RateLimited        *prometheus.CounterVec
	WebSocketClients   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// gets a fresh registry, which keeps tests independent of the default one.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	pluginCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_plugin_calls_total",
			Help: "Plugin operations served, by outcome (empty code means success)",
		},
		[]string{"plugin", "operation", "code"},
	)

	pluginCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "log_plugin_call_duration_seconds",
			Help:    "Time spent serving a plugin operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"plugin", "operation"},
	)

	pluginInflight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "log_plugin_inflight_process_calls",
			Help: "Process calls currently running",
		},
		[]string{"plugin"},
	)

	rateLimited := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_plugin_rate_limited_total",
			Help: "Process calls shed by the admission limiter",
		},
		[]string{"plugin"},
	)

	wsClients := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "log_plugin_websocket_clients",
			Help: "Connected event stream clients",
		},
	)

	reg.MustRegister(pluginCalls)
	reg.MustRegister(pluginCallDuration)
	reg.MustRegister(pluginInflight)
	reg.MustRegister(rateLimited)
	reg.MustRegister(wsClients)

	return &Metrics{
		PluginCalls:        pluginCalls,
		PluginCallDuration: pluginCallDuration,
		PluginInflight:     pluginInflight,
		RateLimited:        rateLimited,
		WebSocketClients:   wsClients,
		gatherer:           reg,
	}
}

// ObserveCall records one served plugin operation
func (m *Metrics) ObserveCall(plugin, operation string, code utils.FaultCode, elapsed time.Duration) {
	m.PluginCalls.WithLabelValues(plugin, operation, string(code)).Inc()
	m.PluginCallDuration.WithLabelValues(plugin, operation).Observe(elapsed.Seconds())
}

// SetInflight records the current number of running Process calls
func (m *Metrics) SetInflight(plugin string, n int64) {
	m.PluginInflight.WithLabelValues(plugin).Set(float64(n))
}

// RecordRateLimited counts one shed Process call
func (m *Metrics) RecordRateLimited(plugin string) {
	m.RateLimited.WithLabelValues(plugin).Inc()
}

// SetWebSocketClients records the number of connected event stream clients
func (m *Metrics) SetWebSocketClients(n int) {
	m.WebSocketClients.Set(float64(n))
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}
