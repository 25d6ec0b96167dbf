package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/methodprobe/internal/probe"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		addr      string
		demoEvery time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with its status server",
		Long: `Start the engine with the status server enabled (/health, /config, ` +
			`/stats, /metrics, /logs) and reload the config file on change. ` +
			`With --demo-every the sample call tree is traced periodically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			cfg.Server.Enabled = true
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if demoEvery > 0 && len(cfg.Tree.EntryMethods) == 0 {
				demoConfig(cfg)
			}

			logger := flags.logger(cfg, cmd.ErrOrStderr())
			e, err := probe.New(cfg, probe.Options{
				ConfigPath: flags.configPath,
				Watch:      flags.configPath != "",
				Logger:     logger,
				Console:    cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}
			if err := e.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "status server listening on %s\n", e.ServerAddr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if demoEvery > 0 {
				go demoLoop(ctx, e.Tracker("demo"), demoEvery)
			}

			<-ctx.Done()
			logger.Info("shutting down", zap.Duration("timeout", time.Duration(cfg.Shutdown.TimeoutMs)*time.Millisecond))
			return e.Shutdown(context.Background())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "status server listen address (overrides config)")
	cmd.Flags().DurationVar(&demoEvery, "demo-every", 0, "trace the sample call tree at this interval (0 disables)")
	return cmd
}
