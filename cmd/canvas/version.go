package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/canvas"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of canvas",
	// The version never needs a config file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "canvas version %s\n", strings.TrimSpace(canvas.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
