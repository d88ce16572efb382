package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"harmony/internal/merge"
	"harmony/internal/pipeline"
	"harmony/internal/runlock"
	"harmony/internal/store"
)

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	var runID, recordID string
	var apply bool

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Put back the values a run overwrote",
		Long: `Restore the pre-run values of every field a run applied, using the
snapshot taken when the run scanned the library. Without --apply the
restore is only previewed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := merge.ModeDryRun
			if apply {
				mode = merge.ModeApply
			}
			return withLibraryRun(cmd, ctx, func(coord *pipeline.Coordinator) error {
				result, err := coord.Restore(cmd.Context(), strings.TrimSpace(runID), strings.TrimSpace(recordID), mode)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(result.Changes) == 0 {
					fmt.Fprintf(out, "Nothing to restore for run %s\n", result.SourceRunID)
					return nil
				}
				fmt.Fprint(out, renderOutcomes("Restore of "+result.SourceRunID, result.Changes))
				if mode == merge.ModeDryRun {
					fmt.Fprintln(out, "Dry run: rerun with --apply to write these values")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Run whose changes are reverted")
	cmd.Flags().StringVar(&recordID, "record", "", "Only restore this record")
	cmd.Flags().BoolVar(&apply, "apply", false, "Write the restored values to the library")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

// withLibraryRun holds the run lock and hands fn a coordinator wired to the
// library and the cache.
func withLibraryRun(cmd *cobra.Command, ctx *commandContext, fn func(*pipeline.Coordinator) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	lock, err := runlock.Acquire(cfg.LockPath(), logger)
	if err != nil {
		return err
	}
	defer lock.Release()

	client, err := ctx.libraryClient()
	if err != nil {
		return err
	}
	return ctx.withStore(func(st *store.Store) error {
		return fn(pipeline.New(st, client, pipeline.WithLogger(logger)))
	})
}
