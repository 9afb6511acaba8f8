package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/google/uuid"
)

// maxResponseBytes bounds how much of a plugin's answer is read
const maxResponseBytes = 32 << 20

// envelope mirrors utils.StandardResponse with the payload left undecoded
type envelope struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
	Error   *utils.ErrorInfo `json:"error"`
	TraceID string           `json:"trace_id"`
}

// HTTPClient calls a plugin served over HTTP
type HTTPClient struct {
	baseURL string
	pool    *utils.ConnectionPool
	logger  *utils.Logger
}

// NewHTTPClient creates a client for the plugin at baseURL, e.g.
// http://localhost:8080. A nil pool gets the default configuration.
func NewHTTPClient(baseURL string, pool *utils.ConnectionPool, logger *utils.Logger) *HTTPClient {
	if pool == nil {
		pool = utils.NewConnectionPool(nil)
	}
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		pool:    pool,
		logger:  logger,
	}
}

// Process implements PluginService
func (c *HTTPClient) Process(ctx context.Context, req *models.ProcessRequest) (*models.ProcessResponse, error) {
	var out models.ProcessResponse
	if err := c.call(ctx, http.MethodPost, "/v1/process", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetInfo implements PluginService
func (c *HTTPClient) GetInfo(ctx context.Context, req *models.InfoRequest) (*models.InfoResponse, error) {
	var out models.InfoResponse
	if err := c.call(ctx, http.MethodPost, "/v1/info", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HealthCheck implements PluginService
func (c *HTTPClient) HealthCheck(ctx context.Context, req *models.HealthRequest) (*models.HealthResponse, error) {
	var out models.HealthResponse
	if err := c.call(ctx, http.MethodPost, "/v1/health", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns connection pool statistics
func (c *HTTPClient) Stats() *utils.ConnectionPoolStats {
	return c.pool.GetStats()
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.pool.Close()
	return nil
}

func (c *HTTPClient) call(ctx context.Context, method, path string, body, out interface{}) error {
	if body == nil {
		body = struct{}{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return utils.InvalidArgument("request cannot be encoded: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return utils.InvalidArgument("bad plugin url: %v", err)
	}
	traceID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(utils.TraceHeader, traceID)

	resp, err := c.pool.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return utils.AsFault(ctx.Err())
		}
		c.logger.WithTraceID(traceID).Warn("Plugin endpoint unreachable", map[string]interface{}{
			"url":   c.baseURL + path,
			"error": err.Error(),
		})
		return utils.NewFault(utils.FaultUnavailable, "plugin endpoint unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return utils.AsFault(ctx.Err())
		}
		return utils.NewFault(utils.FaultUnavailable, "reading plugin response failed", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return utils.NewFault(utils.FaultCodeFromStatus(resp.StatusCode),
				fmt.Sprintf("plugin answered %d", resp.StatusCode), nil)
		}
		return utils.NewFault(utils.FaultProtocolViolation, "plugin response is not a JSON envelope", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return faultFromEnvelope(resp.StatusCode, env.Error)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return utils.NewFault(utils.FaultProtocolViolation, "plugin response carries no data", nil)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return utils.NewFault(utils.FaultProtocolViolation, "plugin response does not match the schema", err)
	}
	return nil
}

// faultFromEnvelope prefers the code in the body and falls back to the status
func faultFromEnvelope(status int, info *utils.ErrorInfo) error {
	code := utils.FaultCodeFromStatus(status)
	message := http.StatusText(status)
	if info != nil {
		if parsed, ok := utils.ParseFaultCode(info.Code); ok {
			code = parsed
		}
		if info.Message != "" {
			message = info.Message
		}
	}
	if status < http.StatusBadRequest && info == nil {
		code = utils.FaultProtocolViolation
		message = "plugin reported failure without a fault"
	}
	return utils.NewFault(code, message, nil)
}
