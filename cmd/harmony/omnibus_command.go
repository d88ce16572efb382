package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"harmony/internal/merge"
	"harmony/internal/pipeline"
)

func newOmnibusCommand(ctx *commandContext) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "omnibus <omnibus-id> <component-id>...",
		Short: "Fill an omnibus edition from its component books",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := merge.ModeDryRun
			if apply {
				mode = merge.ModeApply
			}
			return withLibraryRun(cmd, ctx, func(coord *pipeline.Coordinator) error {
				result, err := coord.Omnibus(cmd.Context(), args[0], args[1:], mode)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(result.Changes) == 0 {
					fmt.Fprintf(out, "%s already matches its components\n", result.Record.DisplayName())
					return nil
				}
				fmt.Fprint(out, renderOutcomes("Omnibus "+result.Record.DisplayName(), result.Changes))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Write the merged fields to the library")
	return cmd
}
