// Package main implements the gyst server and maintenance commands.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "gyst",
	Short:         "Gyst - recurring tasks, streaks and break credits",
	SilenceUsage:  true,
	SilenceErrors: false,
}
