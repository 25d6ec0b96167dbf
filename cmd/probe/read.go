package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/methodprobe/internal/errdigest"
	"github.com/GriffinCanCode/methodprobe/internal/serialization"
	"github.com/GriffinCanCode/methodprobe/internal/snapshot"
)

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <file|dir|pattern>",
		Short: "Print captured snapshot files",
		Long: `Print one block per snapshot file. The argument may be a single file, ` +
			`a directory (searched recursively) or a pattern such as ` +
			`'probe-snapshots/2026-01-*/**/*.snapshot'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := serialization.NewSonic(serialization.WithTypes(errdigest.Digest{}))
			if err != nil {
				return err
			}
			defer codec.Close()

			reader := snapshot.NewReader(codec, cmd.OutOrStdout(), cmd.ErrOrStderr())
			res, err := reader.Run(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d file(s) matched, %d printed, %d failed\n", res.Matched, res.Printed, res.Failed)
			return nil
		},
	}
}
