package handlers

import (
	"runtime"

	"github.com/KBesada24/log-analyzer-plugins/config"
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/gofiber/fiber/v2"
)

// StateReporter is implemented by plugins.Plugin
type StateReporter interface {
	Inflight() int64
	RecoveryStats() map[string]interface{}
}

// DebugHandler exposes the running configuration and process state. It is
// mounted only when debug endpoints are enabled.
type DebugHandler struct {
	config *config.Config
	state  StateReporter
}

// NewDebugHandler creates a new debug handler. state may be nil.
func NewDebugHandler(cfg *config.Config, state StateReporter) *DebugHandler {
	return &DebugHandler{
		config: cfg,
		state:  state,
	}
}

// RegisterRoutes mounts the debug endpoints on router
func (h *DebugHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/config", h.GetConfig)
	router.Get("/routes", h.GetRoutes)
	router.Get("/system", h.GetSystemInfo)
}

// GetConfig returns the effective configuration
func (h *DebugHandler) GetConfig(c *fiber.Ctx) error {
	cfg := fiber.Map{
		"plugin": fiber.Map{
			"name":      h.config.PluginName,
			"transport": h.config.Transport,
		},
		"server": fiber.Map{
			"port":           h.config.Port,
			"host":           h.config.Host,
			"environment":    h.config.Environment,
			"max_body_bytes": h.config.MaxBodyBytes,
		},
		"logging": fiber.Map{
			"level":  h.config.LogLevel,
			"format": h.config.LogFormat,
		},
		"load": fiber.Map{
			"rate_limit_rps":    h.config.RateLimitRPS,
			"rate_limit_burst":  h.config.RateLimitBurst,
			"degraded_inflight": h.config.DegradedInflight,
		},
		"feature_toggles": fiber.Map{
			"websocket":       h.config.EnableWebSocket,
			"metrics":         h.config.EnableMetrics,
			"rate_limiting":   h.config.EnableRateLimiting,
			"circuit_breaker": h.config.EnableCircuitBreaker,
			"detailed_errors": h.config.EnableDetailedErrors,
		},
	}

	return utils.SuccessResponse(c, "Configuration retrieved", cfg)
}

// GetRoutes returns all registered routes
func (h *DebugHandler) GetRoutes(c *fiber.Ctx) error {
	routes := []fiber.Map{}
	for _, route := range c.App().GetRoutes(true) {
		routes = append(routes, fiber.Map{
			"method": route.Method,
			"path":   route.Path,
		})
	}

	return utils.SuccessResponse(c, "Routes retrieved", fiber.Map{
		"total":  len(routes),
		"routes": routes,
	})
}

// GetSystemInfo returns runtime statistics, the number of running Process
// calls and the recovered panic count
func (h *DebugHandler) GetSystemInfo(c *fiber.Ctx) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	info := fiber.Map{
		"go_version":    runtime.Version(),
		"os":            runtime.GOOS,
		"arch":          runtime.GOARCH,
		"num_cpu":       runtime.NumCPU(),
		"num_goroutine": runtime.NumGoroutine(),
		"memory": fiber.Map{
			"alloc_mb":       bToMb(m.Alloc),
			"total_alloc_mb": bToMb(m.TotalAlloc),
			"sys_mb":         bToMb(m.Sys),
			"num_gc":         m.NumGC,
		},
	}
	if h.state != nil {
		info["inflight_process_calls"] = h.state.Inflight()
		info["recovery"] = h.state.RecoveryStats()
	}

	return utils.SuccessResponse(c, "System information retrieved", info)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
