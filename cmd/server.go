package cmd

import (
	"time"

	"github.com/KBesada24/log-analyzer-plugins/config"
	"github.com/KBesada24/log-analyzer-plugins/handlers"
	"github.com/KBesada24/log-analyzer-plugins/metrics"
	"github.com/KBesada24/log-analyzer-plugins/middleware"
	"github.com/KBesada24/log-analyzer-plugins/plugins"
	"github.com/KBesada24/log-analyzer-plugins/services"
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/KBesada24/log-analyzer-plugins/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// newServer builds the HTTP app for plugin. hub may be nil when the
// observer feed is disabled.
func newServer(cfg *config.Config, plugin *plugins.Plugin, hub *websocket.Hub, m *metrics.Metrics, logger *utils.Logger) *fiber.App {
	app := createFiberApp(cfg, logger)
	setupMiddleware(app, cfg, logger)
	setupRoutes(app, cfg, plugin, hub, m, logger)
	return app
}

// createFiberApp creates and configures the Fiber application
func createFiberApp(cfg *config.Config, logger *utils.Logger) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               "log-plugin " + cfg.PluginName,
		ErrorHandler:          middleware.ErrorHandler(logger),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          cfg.CallTimeout + 5*time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             cfg.MaxBodyBytes,
		DisableStartupMessage: true,
	})
}

// setupMiddleware configures all middleware for the application
func setupMiddleware(app *fiber.App, cfg *config.Config, logger *utils.Logger) {
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.IsDevelopment(),
	}))
	app.Use(middleware.CorrelationID())
	app.Use(middleware.AccessLog(logger, "/metrics", "/v1/health"))
	app.Use(middleware.ErrorHandling(&middleware.ErrorHandlingConfig{
		EnableStackTrace: cfg.EnableDetailedErrors,
		MaxStackBytes:    4096,
		Logger:           logger,
	}))
	app.Use(middleware.RequestValidation(middleware.ValidationConfig{
		MaxBodySize: int64(cfg.MaxBodyBytes),
	}))
}

// setupRoutes configures all routes for the application
func setupRoutes(app *fiber.App, cfg *config.Config, plugin *plugins.Plugin, hub *websocket.Hub, m *metrics.Metrics, logger *utils.Logger) {
	var processMiddleware []fiber.Handler
	if cfg.EnableRateLimiting {
		processMiddleware = append(processMiddleware, middleware.ProcessRateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			OnLimitReached: func(*fiber.Ctx) {
				m.RecordRateLimited(plugin.Name())
			},
		}))
	}

	var broadcaster services.WebSocketBroadcaster
	if hub != nil {
		broadcaster = hub
	}
	handlers.NewPluginHandler(plugin, plugin.Name(), broadcaster, cfg.CallTimeout).
		RegisterRoutes(app.Group("/v1"), processMiddleware...)

	if cfg.EnableMetrics {
		app.Get("/metrics", m.Handler())
	}

	if hub != nil {
		// stats goes first so the upgrade check below does not claim it
		app.Get(cfg.WSEndpoint+"/stats", websocket.Stats(hub))
		app.Use(cfg.WSEndpoint, websocket.Upgrade)
		app.Get(cfg.WSEndpoint, websocket.Handler(hub))
	}

	if cfg.EnableDebugEndpoints {
		handlers.NewDebugHandler(cfg, plugin).RegisterRoutes(app.Group("/debug"))
	}

	logger.Info("Routes configured successfully", map[string]interface{}{
		"plugin":             plugin.Name(),
		"api_base":           "/v1",
		"metrics":            cfg.EnableMetrics,
		"websocket_endpoint": cfg.WSEndpoint,
		"websocket":          hub != nil,
		"debug":              cfg.EnableDebugEndpoints,
	})
}
