package main

import (
	"github.com/spf13/cobra"

	"npprobes/internal/services"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWithExecutor(services.CommandExecutor{})
}

// newRootCommandWithExecutor builds the command tree with the executor used
// for external tools (the aligner and the NWB writer).
func newRootCommandWithExecutor(executor services.Executor) *cobra.Command {
	var configFlag string
	var jsonFlag bool

	ctx := newCommandContext(&configFlag, &jsonFlag, executor)

	rootCmd := &cobra.Command{
		Use:           "npprobes",
		Short:         "Package Neuropixels probe data for a recording session",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable JSON")

	rootCmd.AddCommand(newProbesCommand(ctx))
	rootCmd.AddCommand(newAlignCommand(ctx))
	rootCmd.AddCommand(newLFPRequestCommand(ctx))
	rootCmd.AddCommand(newPackageCommand(ctx))
	rootCmd.AddCommand(newRegistryCommand(ctx))
	rootCmd.AddCommand(newPreflightCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
