package main

import (
	"github.com/spf13/cobra"

	"vibesrails/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResult(cmd, version.Get())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
