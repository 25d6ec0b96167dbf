package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/config"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	dev        bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "probe",
		Short: "Method call tracing and snapshot tools",
		Long: `probe inspects and exercises the method tracing engine: it prints ` +
			`captured snapshot files, shows the effective configuration, runs a ` +
			`demonstration trace and serves the status endpoints.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (.yaml, .yml, .toml or .json)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "diagnostic log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.dev, "dev", false, "human-readable diagnostic logs")

	root.AddCommand(
		newReadCmd(),
		newConfigCmd(flags),
		newDemoCmd(flags),
		newServeCmd(flags),
	)
	return root
}

// load resolves defaults, the config file and PROBE_* variables, then
// applies command-line overrides.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.dev {
		cfg.Logging.Development = true
	}
	return cfg, nil
}

func (f *globalFlags) logger(cfg *config.Config, out io.Writer) *logging.Logger {
	return logging.FromEnv(cfg.Logging.Level, cfg.Logging.Development, out)
}
