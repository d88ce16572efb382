package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "harmony",
		Short:         "Harmonize audiobook metadata across related records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.loadEnv(); err != nil {
				return err
			}
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.flags.configPath, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.flags.envFile, "env-file", "", "Additional .env file to load before the configuration")

	rootCmd.AddCommand(
		newRunCommand(ctx),
		newReviewCommand(ctx),
		newAuditCommand(ctx),
		newRestoreCommand(ctx),
		newOmnibusCommand(ctx),
		newCheckpointCommand(ctx),
		newConfigCommand(ctx),
	)

	return rootCmd
}
