package cmd

import (
	"context"
	"fmt"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/plugins"
	"github.com/KBesada24/log-analyzer-plugins/services"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the bundled plugins",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range plugins.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func newInfoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print a plugin's name, version and capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPlugin(cmd, func(ctx context.Context, plugin services.PluginService) error {
				info, err := plugin.GetInfo(ctx, &models.InfoRequest{})
				if err != nil {
					return fmt.Errorf("info failed: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	}
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	var failUnhealthy bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a plugin's health",
		Long: `Probe a plugin's health and print the status. With --fail-unhealthy the
command exits non-zero unless the plugin reports healthy or degraded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPlugin(cmd, func(ctx context.Context, plugin services.PluginService) error {
				health, err := plugin.HealthCheck(ctx, &models.HealthRequest{})
				if err != nil {
					return fmt.Errorf("health check failed: %w", err)
				}
				if err := printJSON(cmd.OutOrStdout(), health); err != nil {
					return err
				}
				if failUnhealthy && health.Status == models.HealthUnhealthy {
					return fmt.Errorf("plugin is %s", health.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failUnhealthy, "fail-unhealthy", false, "Exit non-zero when the plugin reports unhealthy")
	return cmd
}
