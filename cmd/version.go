package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/etr/core/engine"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the engine version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), engine.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
