package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/methodprobe/internal/errdigest"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/config"
	"github.com/GriffinCanCode/methodprobe/internal/probe"
	"github.com/GriffinCanCode/methodprobe/internal/serialization"
	"github.com/GriffinCanCode/methodprobe/internal/snapshot"
	"github.com/GriffinCanCode/methodprobe/internal/tree"
)

// Demo call durations: A.run -> B.work (120ms) -> C.query (30ms).
const (
	demoLead  = 20 * time.Millisecond
	demoWork  = 90 * time.Millisecond
	demoQuery = 30 * time.Millisecond
)

var errOutOfStock = errors.New("out of stock")

func newDemoCmd(flags *globalFlags) *cobra.Command {
	var (
		dir  string
		fail bool
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Trace a sample call tree and print its snapshot",
		Long: `Run A.run -> B.work -> C.query with a 50ms threshold, render the ` +
			`resulting tree and print the snapshot captured for the entry call.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if dir == "" {
				tmp, err := os.MkdirTemp("", "probe-demo-")
				if err != nil {
					return err
				}
				dir = tmp
			}
			demoConfig(cfg)
			cfg.Snapshot.Enabled = true
			cfg.Snapshot.Dir = filepath.Join(dir, "snapshots")
			cfg.Output.Mode = config.OutputConsole

			e, err := probe.New(cfg, probe.Options{
				Logger:  flags.logger(cfg, cmd.ErrOrStderr()),
				Console: cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}
			if err := e.Start(); err != nil {
				return err
			}

			if err := runDemo(e.Tracker("main"), fail); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "demo call failed: %v\n", err)
			}
			if err := e.Shutdown(cmd.Context()); err != nil {
				return err
			}

			codec, err := serialization.NewSonic(serialization.WithTypes(errdigest.Digest{}))
			if err != nil {
				return err
			}
			defer codec.Close()
			if _, err := snapshot.NewReader(codec, cmd.OutOrStdout(), cmd.ErrOrStderr()).Run(cfg.Snapshot.Dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nSnapshots kept in %s\n", cfg.Snapshot.Dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory for snapshots (default: a new temp dir)")
	cmd.Flags().BoolVar(&fail, "fail", false, "make B.work return an error")
	return cmd
}

// demoConfig points the tree settings at the sample classes.
func demoConfig(cfg *config.Config) {
	cfg.Tree.Enabled = true
	cfg.Tree.EntryMethods = []string{"A.run"}
	cfg.Tree.Packages = []string{"B", "C"}
	cfg.Tree.Trigger = "timeout,exception"
	cfg.Tree.ThresholdMs = 50
	cfg.Flat.Enabled = false
}

func runDemo(t *tree.Tracker, fail bool) error {
	return t.Do("A", "run", func() error {
		time.Sleep(demoLead)
		return t.Do("B", "work", func() error {
			time.Sleep(demoWork)
			if err := t.Do("C", "query", func() error {
				time.Sleep(demoQuery)
				return nil
			}, "SELECT stock FROM items WHERE id = ?", 42); err != nil {
				return err
			}
			if fail {
				return fmt.Errorf("reserve item 42: %w", errOutOfStock)
			}
			return nil
		}, 42)
	}, "order-42")
}

// demoLoop runs the sample tree every interval until ctx ends.
func demoLoop(ctx context.Context, t *tree.Tracker, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			_ = runDemo(t, n%5 == 0)
		}
	}
}
