package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"harmony/internal/services"
	"harmony/internal/store"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and resolve the manual-review queue",
	}
	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewResolveCommand(ctx))
	return reviewCmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records waiting for manual review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				entries, err := st.ListReview(cmd.Context(), all)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Manual-review queue is empty")
					return nil
				}
				fmt.Fprintln(out, renderReview(entries, time.Now()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include resolved entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")
	return cmd
}

func newReviewResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>...",
		Short: "Mark review entries as resolved",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id < 1 {
					return fmt.Errorf("invalid review id %q", arg)
				}
				ids = append(ids, id)
			}
			return ctx.withStore(func(st *store.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					ok, err := st.ResolveReview(cmd.Context(), id)
					if err != nil {
						return err
					}
					if !ok {
						return services.Wrap(services.ErrNotFound, "review", "resolve",
							fmt.Sprintf("no open review entry %d", id), nil)
					}
					fmt.Fprintf(out, "Resolved review entry %d\n", id)
				}
				return nil
			})
		},
	}
}
