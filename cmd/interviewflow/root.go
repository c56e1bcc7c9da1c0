package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "interviewflow",
		Short:         "Interview video processing service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newAPICommand())
	rootCmd.AddCommand(newWorkerCommand())
	rootCmd.AddCommand(newProcessCommand())
	rootCmd.AddCommand(newVideoCommand())

	return rootCmd
}
