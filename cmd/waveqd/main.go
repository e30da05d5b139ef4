// Command waveqd runs the waveq daemon: the HTTP API, the job workers, and
// the status listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"waveq/internal/config"
	"waveq/internal/daemon"
	"waveq/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string

	cmd := &cobra.Command{
		Use:           "waveqd",
		Short:         "WaveQ audio processing daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFlag)
		},
	}
	cmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, resolved, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	if resolved != "" {
		logger.Info("configuration loaded", logging.String("path", resolved))
	} else {
		logger.Info("using built-in configuration defaults")
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("daemon close", logging.Error(err))
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Start(runCtx); err != nil {
		return err
	}

	<-runCtx.Done()
	d.Stop()
	return nil
}
