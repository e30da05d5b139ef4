package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"waveq/internal/config"
)

// commandContext carries lazily loaded configuration and the daemon client
// shared by all subcommands.
type commandContext struct {
	configFlag *string
	serverFlag *string

	cfg    *config.Config
	client *client
}

func newCommandContext(configFlag, serverFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, serverFlag: serverFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, err := config.Load(strings.TrimSpace(*c.configFlag))
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureClient() (*client, error) {
	if c.client != nil {
		return c.client, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	base := strings.TrimSpace(*c.serverFlag)
	if base == "" {
		base = fmt.Sprintf("http://%s", cfg.APIBind)
	}
	c.client = newClient(base, cfg.APIToken)
	return c.client, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var serverFlag string

	ctx := newCommandContext(&configFlag, &serverFlag)

	rootCmd := &cobra.Command{
		Use:           "waveq",
		Short:         "WaveQ audio editing client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Daemon API base URL (overrides config)")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newCancelCommand(ctx))
	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newOperationsCommand(ctx))
	rootCmd.AddCommand(newHealthCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
