package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	app := fiber.New()
	app.Get("/metrics", m.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_PluginCalls(t *testing.T) {
	m := NewMetrics(nil)

	m.ObserveCall("error-aggregator", "process", "", 20*time.Millisecond)
	m.ObserveCall("error-aggregator", "process", utils.FaultInvalidArgument, time.Millisecond)
	m.SetInflight("error-aggregator", 3)

	body := scrape(t, m)
	assert.Contains(t, body, `log_plugin_calls_total{code="",operation="process",plugin="error-aggregator"} 1`)
	assert.Contains(t, body, `log_plugin_calls_total{code="invalid_argument",operation="process",plugin="error-aggregator"} 1`)
	assert.Contains(t, body, `log_plugin_call_duration_seconds_count{operation="process",plugin="error-aggregator"} 2`)
	assert.Contains(t, body, `log_plugin_inflight_process_calls{plugin="error-aggregator"} 3`)
}

func TestMetrics_ServerSide(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordRateLimited("security-scanner")
	m.SetWebSocketClients(4)

	body := scrape(t, m)
	assert.Contains(t, body, `log_plugin_rate_limited_total{plugin="security-scanner"} 1`)
	assert.Contains(t, body, `log_plugin_websocket_clients 4`)
	assert.NotContains(t, body, "log_plugin_host_")
}

func TestHostMetrics_WriteText(t *testing.T) {
	m := NewHostMetrics(nil)

	m.ObserveHostCall("security-scanner", "health", utils.FaultUnavailable)
	m.ObserveHostCall("security-scanner", "health", "")
	m.RecordRetry("security-scanner", "health")
	m.RecordRetry("security-scanner", "health")
	m.SetCircuitState("security-scanner", utils.StateOpen)

	var out strings.Builder
	require.NoError(t, m.WriteText(&out))
	body := out.String()
	assert.Contains(t, body, `log_plugin_host_calls_total{code="unavailable",operation="health",plugin="security-scanner"} 1`)
	assert.Contains(t, body, `log_plugin_host_calls_total{code="",operation="health",plugin="security-scanner"} 1`)
	assert.Contains(t, body, `log_plugin_host_retries_total{operation="health",plugin="security-scanner"} 2`)
	assert.Contains(t, body, `log_plugin_circuit_state{plugin="security-scanner"} 1`)
}

func TestNewMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	assert.Panics(t, func() { NewMetrics(reg) })

	hostReg := prometheus.NewRegistry()
	NewHostMetrics(hostReg)
	NewMetrics(hostReg)
	assert.Panics(t, func() { NewHostMetrics(hostReg) })
}
