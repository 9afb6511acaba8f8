package metrics

import (
	"fmt"
	"io"

	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// HostMetrics holds the collectors of a host calling plugins through an
// invoker. It implements services.InvokerRecorder.
type HostMetrics struct {
	HostCalls    *prometheus.CounterVec
	HostRetries  *prometheus.CounterVec
	CircuitState *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewHostMetrics creates the host collectors and registers them with reg.
// A nil reg gets a fresh registry.
func NewHostMetrics(reg *prometheus.Registry) *HostMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	hostCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_plugin_host_calls_total",
			Help: "Plugin calls made by the host, by outcome (empty code means success)",
		},
		[]string{"plugin", "operation", "code"},
	)

	hostRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_plugin_host_retries_total",
			Help: "Plugin calls the host retried after a retryable fault",
		},
		[]string{"plugin", "operation"},
	)

	circuitState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "log_plugin_circuit_state",
			Help: "Host circuit breaker state per plugin (0=closed, 1=open, 2=half-open)",
		},
		[]string{"plugin"},
	)

	reg.MustRegister(hostCalls)
	reg.MustRegister(hostRetries)
	reg.MustRegister(circuitState)

	return &HostMetrics{
		HostCalls:    hostCalls,
		HostRetries:  hostRetries,
		CircuitState: circuitState,
		gatherer:     reg,
	}
}

// ObserveHostCall records the final outcome of a call made through an invoker
func (m *HostMetrics) ObserveHostCall(plugin, operation string, code utils.FaultCode) {
	m.HostCalls.WithLabelValues(plugin, operation, string(code)).Inc()
}

// RecordRetry counts one retried host call
func (m *HostMetrics) RecordRetry(plugin, operation string) {
	m.HostRetries.WithLabelValues(plugin, operation).Inc()
}

// SetCircuitState records a breaker transition
func (m *HostMetrics) SetCircuitState(plugin string, state utils.CircuitBreakerState) {
	m.CircuitState.WithLabelValues(plugin).Set(float64(state))
}

// WriteText writes every gathered family in the Prometheus text format
func (m *HostMetrics) WriteText(w io.Writer) error {
	families, err := m.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gathering host metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing host metrics: %w", err)
		}
	}
	return nil
}
