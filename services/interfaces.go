package services

import (
	"context"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
)

// PluginService is the contract every log-analysis plugin fulfils. It is
// implemented in-process by plugins.Plugin and remotely by HTTPClient and
// StdioClient.
type PluginService interface {
	Process(ctx context.Context, req *models.ProcessRequest) (*models.ProcessResponse, error)
	GetInfo(ctx context.Context, req *models.InfoRequest) (*models.InfoResponse, error)
	HealthCheck(ctx context.Context, req *models.HealthRequest) (*models.HealthResponse, error)
}

// WebSocketBroadcaster interface for WebSocket broadcasting
type WebSocketBroadcaster interface {
	BroadcastToAll(msgType string, data interface{})
}

// InvokerRecorder receives the outcome of host-side calls. The metrics
// package implements it.
type InvokerRecorder interface {
	ObserveHostCall(plugin, operation string, code utils.FaultCode)
	RecordRetry(plugin, operation string)
	SetCircuitState(plugin string, state utils.CircuitBreakerState)
}
