package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"harmony/internal/store"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var filter store.AuditFilter
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log of library writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				entries, err := st.ListAudit(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No audit entries")
					return nil
				}
				fmt.Fprintln(out, renderAudit(entries))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter.RunID, "run", "", "Only entries of this run")
	cmd.Flags().StringVar(&filter.RecordID, "record", "", "Only entries of this record")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum number of entries (0 = all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")
	return cmd
}
