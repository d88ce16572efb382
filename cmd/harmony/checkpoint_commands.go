package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"harmony/internal/pipeline"
	"harmony/internal/runlock"
	"harmony/internal/store"
)

func newCheckpointCommand(ctx *commandContext) *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or discard the pending run",
	}
	checkpointCmd.AddCommand(newCheckpointShowCommand(ctx))
	checkpointCmd.AddCommand(newCheckpointClearCommand(ctx))
	return checkpointCmd
}

func newCheckpointShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the pending run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				state, err := pipeline.LoadState(cmd.Context(), st)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if state == nil {
					if jsonOutput {
						return writeJSON(cmd, nil)
					}
					fmt.Fprintln(out, "No pending run")
					return nil
				}
				if jsonOutput {
					return writeJSON(cmd, state)
				}
				phase := string(state.Phase)
				if state.Phase == pipeline.PhaseFailed {
					phase = fmt.Sprintf("failed in %s", state.FailedPhase)
				}
				rows := [][]string{
					{"Run", state.RunID},
					{"Phase", phase},
					{"Mode", string(state.Mode)},
					{"Threshold", fmt.Sprintf("%.2f", state.Threshold)},
					{"Started", humanize.Time(state.StartedAt)},
					{"Updated", humanize.Time(state.UpdatedAt)},
					{"Resumes", fmt.Sprintf("%d", state.Resumes)},
					{"Records scanned", humanize.Comma(int64(len(state.Scanned)))},
					{"Discrepancies", fmt.Sprintf("%d", len(state.Discrepancies))},
					{"Changes recorded", fmt.Sprintf("%d", len(state.Changes))},
					{"Failures", fmt.Sprintf("%d", len(state.Failures))},
					{"Last error", dash(state.LastError)},
				}
				fmt.Fprintln(out, renderTable("Pending run", []string{"Item", "Value"}, rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run state as JSON")
	return cmd
}

func newCheckpointClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the pending run so the next run starts over",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock, err := runlock.Acquire(cfg.LockPath(), nil)
			if err != nil {
				return err
			}
			defer lock.Release()
			return ctx.withStore(func(st *store.Store) error {
				if err := st.ClearCheckpoint(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Checkpoint cleared")
				return nil
			})
		},
	}
}
