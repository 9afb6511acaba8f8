package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/KBesada24/log-analyzer-plugins/config"
	"github.com/KBesada24/log-analyzer-plugins/handlers"
	"github.com/KBesada24/log-analyzer-plugins/metrics"
	"github.com/KBesada24/log-analyzer-plugins/plugins"
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/KBesada24/log-analyzer-plugins/websocket"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	plugin    string
	transport string
	host      string
	port      string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a bundled plugin",
		Long: `Run one of the bundled plugins. Settings come from the environment and an
optional .env file; flags override them.

With --transport stdio the plugin reads JSON request lines on stdin and writes
one response line per request on stdout. It exits when stdin is closed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.plugin, "plugin", "", "Plugin to run (env: PLUGIN_NAME)")
	cmd.Flags().StringVar(&opts.transport, "transport", "", "http or stdio (env: PLUGIN_TRANSPORT)")
	cmd.Flags().StringVar(&opts.host, "host", "", "HTTP listen host (env: HOST)")
	cmd.Flags().StringVar(&opts.port, "port", "", "HTTP listen port (env: PORT)")
	return cmd
}

func (o *serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("plugin") {
		cfg.PluginName = o.plugin
	}
	if flags.Changed("transport") {
		cfg.Transport = strings.ToLower(o.transport)
	}
	if flags.Changed("host") {
		cfg.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Port = o.port
	}
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg := config.Load()
	opts.apply(cmd, cfg)
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	logger := utils.InitLogger(cfg.LogLevel, cfg.LogFormat)
	m := metrics.NewMetrics(nil)

	plugin, err := plugins.New(cfg.PluginName,
		plugins.WithLogger(logger),
		plugins.WithRecorder(m),
		plugins.WithLoadProbe(plugins.NewSystemLoadProbe()),
		plugins.WithDegradedThreshold(cfg.DegradedInflight),
	)
	if err != nil {
		return err
	}

	logger.Info("Starting log analysis plugin", map[string]interface{}{
		"plugin":      plugin.Name(),
		"transport":   cfg.Transport,
		"environment": cfg.Environment,
	})

	if cfg.Transport == config.TransportStdio {
		return handlers.NewStdioServer(plugin, handlers.DefaultMaxLineBytes).
			Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	}
	return serveHTTP(cmd.Context(), cfg, plugin, m, logger)
}

// serveHTTP listens until ctx is cancelled, then drains in-flight calls
func serveHTTP(ctx context.Context, cfg *config.Config, plugin *plugins.Plugin, m *metrics.Metrics, logger *utils.Logger) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	var hub *websocket.Hub
	if cfg.EnableWebSocket {
		hub = websocket.NewHub(logger)
		hub.OnClientCount(m.SetWebSocketClients)
		go hub.Run(hubCtx)
	}

	app := newServer(cfg, plugin, hub, m, logger)

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", map[string]interface{}{
			"address":     cfg.GetServerAddress(),
			"environment": cfg.Environment,
		})
		listenErr <- app.Listen(cfg.GetServerAddress())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, starting graceful shutdown")
	plugin.SetReady(false)

	shutdown := utils.NewGracefulShutdown(cfg.ShutdownTimeout, logger)
	shutdown.RegisterShutdown(func(context.Context) error {
		stopHub()
		return nil
	})
	shutdown.RegisterShutdown(app.ShutdownWithContext)
	return shutdown.Shutdown(context.Background())
}
