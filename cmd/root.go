package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/config"
	"github.com/KBesada24/log-analyzer-plugins/metrics"
	"github.com/KBesada24/log-analyzer-plugins/services"
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by the host-side commands
type rootOptions struct {
	url      string
	execPath string
	execArgs []string
	logLevel string
	timeout     time.Duration
	retries     int
	maxInflight int
	metrics     bool
}

func newRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "log-plugin",
		Short: "Log analysis plugins and a host client for them",
		Long: `log-plugin runs one of the bundled log analysis plugins over HTTP or stdio,
and acts as a host that calls any plugin speaking the same protocol.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate("log-plugin {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&opts.url, "url", "", "Plugin HTTP endpoint, e.g. http://localhost:8080 (env: PLUGIN_URL)")
	pf.StringVar(&opts.execPath, "exec", "", "Plugin binary to run over stdio (env: PLUGIN_EXEC)")
	pf.StringSliceVar(&opts.execArgs, "exec-arg", nil, "Argument for the --exec binary, repeatable")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "Host log level: debug, info, warn, error")
	pf.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Timeout for each call attempt (env: CALL_TIMEOUT)")
	pf.IntVar(&opts.retries, "retries", 3, "Attempts per call when the plugin answers internal or unavailable (env: RETRY_ATTEMPTS)")
	pf.IntVar(&opts.maxInflight, "max-inflight", 8, "Concurrent Process calls allowed to the plugin, 0 for no cap (env: MAX_INFLIGHT)")
	pf.BoolVar(&opts.metrics, "metrics", false, "Print host call metrics to stderr when the command finishes")

	root.AddCommand(
		newServeCmd(),
		newInfoCmd(opts),
		newHealthCmd(opts),
		newProcessCmd(opts),
		newListCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute(version string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(version).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func (o *rootOptions) resolveURL() string {
	if o.url != "" {
		return o.url
	}
	return os.Getenv("PLUGIN_URL")
}

func (o *rootOptions) resolveExec() string {
	if o.execPath != "" {
		return o.execPath
	}
	return os.Getenv("PLUGIN_EXEC")
}

// connect builds the host-side call chain for the selected plugin. The
// returned close function releases the transport. Flags left unset fall back
// to the environment.
func (o *rootOptions) connect(cmd *cobra.Command, recorder services.InvokerRecorder) (*services.Invoker, func() error, error) {
	logger := utils.InitLogger(o.logLevel, "text")
	url, execPath := o.resolveURL(), o.resolveExec()

	var (
		target  services.PluginService
		closeFn func() error
		name    string
	)
	switch {
	case url != "" && execPath != "":
		return nil, nil, errors.New("--url and --exec are mutually exclusive")
	case url != "":
		client := services.NewHTTPClient(url, nil, logger)
		target, closeFn, name = client, client.Close, url
	case execPath != "":
		client := services.NewStdioClient(execPath, o.execArgs, logger)
		client.Env = []string{"PLUGIN_TRANSPORT=stdio"}
		target, closeFn, name = client, client.Close, filepath.Base(execPath)
	default:
		return nil, nil, errors.New("one of --url or --exec is required")
	}

	env := config.Load()
	cfg := services.DefaultInvokerConfig(name)
	cfg.CallTimeout = env.CallTimeout
	if cmd.Flags().Changed("timeout") {
		cfg.CallTimeout = o.timeout
	}
	cfg.Retry.MaxAttempts = env.RetryAttempts
	if cmd.Flags().Changed("retries") {
		cfg.Retry.MaxAttempts = o.retries
	}
	cfg.MaxInflight = env.MaxInflight
	if cmd.Flags().Changed("max-inflight") {
		cfg.MaxInflight = o.maxInflight
	}
	if cfg.MaxInflight < 0 {
		closeFn()
		return nil, nil, errors.New("--max-inflight must not be negative")
	}
	if !env.EnableCircuitBreaker {
		cfg.Breaker = nil
	}
	return services.NewInvoker(target, cfg, recorder, logger), closeFn, nil
}

// withPlugin connects, runs fn and closes the transport. With --metrics the
// host call metrics are written to stderr afterwards, whether fn failed or not.
func (o *rootOptions) withPlugin(cmd *cobra.Command, fn func(ctx context.Context, plugin services.PluginService) error) error {
	hostMetrics := metrics.NewHostMetrics(nil)
	plugin, closeFn, err := o.connect(cmd, hostMetrics)
	if err != nil {
		return err
	}
	defer closeFn()

	err = fn(cmd.Context(), plugin)
	if o.metrics {
		if werr := hostMetrics.WriteText(cmd.ErrOrStderr()); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
