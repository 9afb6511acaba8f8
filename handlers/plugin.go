package handlers

import (
	"context"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/services"
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/gofiber/fiber/v2"
)

// PluginHandler serves the plugin operations over HTTP
type PluginHandler struct {
	plugin      services.PluginService
	name        string
	broadcaster services.WebSocketBroadcaster
	timeout     time.Duration
	logger      *utils.Logger
}

// NewPluginHandler creates a handler for plugin. broadcaster may be nil.
// A zero timeout leaves Process bounded only by the client connection.
func NewPluginHandler(plugin services.PluginService, name string, broadcaster services.WebSocketBroadcaster, timeout time.Duration) *PluginHandler {
	return &PluginHandler{
		plugin:      plugin,
		name:        name,
		broadcaster: broadcaster,
		timeout:     timeout,
		logger:      utils.GetLogger(),
	}
}

// RegisterRoutes mounts the plugin endpoints on router
func (h *PluginHandler) RegisterRoutes(router fiber.Router, processMiddleware ...fiber.Handler) {
	process := append(append([]fiber.Handler{}, processMiddleware...), h.Process)
	router.Post("/process", process...)
	router.Post("/info", h.GetInfo)
	router.Get("/info", h.GetInfo)
	router.Post("/health", h.HealthCheck)
	router.Get("/health", h.HealthCheck)
}

// Process handles POST /v1/process - analyzes one batch of log entries
func (h *PluginHandler) Process(c *fiber.Ctx) error {
	traceID := utils.GetTraceID(c)
	log := h.logger.WithTraceID(traceID).WithSource("plugin_handler")
	start := time.Now()

	var req models.ProcessRequest
	if err := utils.DecodeJSONBody(c, &req); err != nil {
		log.Warn("Rejected malformed process request", map[string]interface{}{
			"error": err.Error(),
		})
		return utils.FaultResponse(c, err)
	}

	ctx := c.UserContext()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, err := h.plugin.Process(ctx, &req)
	elapsed := time.Since(start)
	if err != nil {
		fault := utils.AsFault(err)
		if fault.Code == utils.FaultInternal {
			log.Error("Process failed", err, map[string]interface{}{
				"entry_count": len(req.Entries),
			})
		} else {
			log.Warn("Process refused", map[string]interface{}{
				"code":        string(fault.Code),
				"message":     fault.Message,
				"entry_count": len(req.Entries),
			})
		}
		h.broadcast(models.EventProcessFailed, models.ProcessEvent{
			Plugin:     h.name,
			TraceID:    traceID,
			EntryCount: len(req.Entries),
			FaultCode:  string(fault.Code),
			DurationMs: elapsed.Milliseconds(),
		})
		return utils.FaultResponse(c, err)
	}

	log.Info("Process completed", map[string]interface{}{
		"entry_count":     len(req.Entries),
		"processed_count": resp.Result.ProcessedCount,
		"finding_count":   resp.Result.FindingCount,
		"severity_level":  resp.Result.SeverityLevel,
		"duration_ms":     elapsed.Milliseconds(),
	})
	h.broadcast(models.EventProcessCompleted, models.ProcessEvent{
		Plugin:         h.name,
		TraceID:        traceID,
		EntryCount:     len(req.Entries),
		ProcessedCount: resp.Result.ProcessedCount,
		FindingCount:   resp.Result.FindingCount,
		SeverityLevel:  resp.Result.SeverityLevel,
		DurationMs:     elapsed.Milliseconds(),
	})

	return utils.SuccessResponse(c, "Log batch processed", resp)
}

// GetInfo handles GET|POST /v1/info
func (h *PluginHandler) GetInfo(c *fiber.Ctx) error {
	var req models.InfoRequest
	if c.Method() == fiber.MethodPost {
		if err := utils.DecodeJSONBody(c, &req); err != nil {
			return utils.FaultResponse(c, err)
		}
	}

	info, err := h.plugin.GetInfo(c.UserContext(), &req)
	if err != nil {
		return utils.FaultResponse(c, err)
	}
	return utils.SuccessResponse(c, "Plugin info retrieved", info)
}

// HealthCheck handles GET|POST /v1/health. An unhealthy plugin still answers
// 200; the status is in the body.
func (h *PluginHandler) HealthCheck(c *fiber.Ctx) error {
	var req models.HealthRequest
	if c.Method() == fiber.MethodPost {
		if err := utils.DecodeJSONBody(c, &req); err != nil {
			return utils.FaultResponse(c, err)
		}
	}

	health, err := h.plugin.HealthCheck(c.UserContext(), &req)
	if err != nil {
		return utils.FaultResponse(c, err)
	}
	return utils.SuccessResponse(c, "Plugin health retrieved", health)
}

func (h *PluginHandler) broadcast(eventType string, event models.ProcessEvent) {
	if h.broadcaster == nil {
		return
	}
	h.broadcaster.BroadcastToAll(eventType, event)
}
