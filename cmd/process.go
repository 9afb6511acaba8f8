package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/services"
	"github.com/spf13/cobra"
)

type processOptions struct {
	file       string
	configFile string
	params     map[string]string
}

func newProcessCmd(opts *rootOptions) *cobra.Command {
	popts := &processOptions{}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Send a batch of log entries to a plugin and print its findings",
		Long: `Read a batch from --file (or stdin) and send it to the plugin. The input is
either a full process request object or a JSON array of log entries.`,
		Example: `  log-plugin process --url http://localhost:8080 -f batch.json
  cat entries.json | log-plugin process --exec ./log-plugin --exec-arg serve --param min_severity=HIGH`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := popts.buildRequest(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return opts.withPlugin(cmd, func(ctx context.Context, plugin services.PluginService) error {
				resp, err := plugin.Process(ctx, req)
				if err != nil {
					return fmt.Errorf("process failed: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}

	cmd.Flags().StringVarP(&popts.file, "file", "f", "-", "Batch file; - reads stdin")
	cmd.Flags().StringVar(&popts.configFile, "config-file", "", "YAML document sent as plugin_config")
	cmd.Flags().StringToStringVar(&popts.params, "param", nil, "Plugin parameter key=value, repeatable")
	return cmd
}

func (o *processOptions) buildRequest(stdin io.Reader) (*models.ProcessRequest, error) {
	var (
		raw []byte
		err error
	)
	if o.file == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(o.file)
	}
	if err != nil {
		return nil, fmt.Errorf("reading batch: %w", err)
	}

	req, err := parseBatch(raw)
	if err != nil {
		return nil, err
	}

	for k, v := range o.params {
		req.Parameters[k] = v
	}
	if o.configFile != "" {
		doc, err := os.ReadFile(o.configFile)
		if err != nil {
			return nil, fmt.Errorf("reading plugin config: %w", err)
		}
		req.PluginConfig = string(doc)
	}
	return req, nil
}

// parseBatch accepts a ProcessRequest object or a bare array of entries.
// Empty input is an empty batch.
func parseBatch(raw []byte) (*models.ProcessRequest, error) {
	raw = bytes.TrimSpace(raw)
	req := &models.ProcessRequest{}

	switch {
	case len(raw) == 0:
		req.Normalize()
	case raw[0] == '[':
		var entries []models.LogEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("batch is not a JSON array of log entries: %w", err)
		}
		req.Entries = entries
		req.Normalize()
	default:
		if err := json.Unmarshal(raw, req); err != nil {
			return nil, fmt.Errorf("batch is not a JSON process request: %w", err)
		}
	}
	return req, nil
}
