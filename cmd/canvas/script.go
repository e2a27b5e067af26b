package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/canvas/internal/config"
	"github.com/aretw0/canvas/pkg/domain"
)

var scriptCmd = &cobra.Command{
	Use:   "script [file]",
	Short: "Print or validate a wizard script",
	Long: `Without arguments, prints the script the service would use (wizard.script_path
or the built-in Business Canvas script). With a file, validates it and prints
the parsed steps.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		var (
			script domain.Script
			err    error
		)
		if len(args) == 1 {
			script, err = config.LoadScript(args[0])
		} else {
			script, err = loadScript(cfg)
		}
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(cmd.OutOrStdout(), script)
		}
		data, err := yaml.Marshal(map[string]any{"steps": script})
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(scriptCmd)
	scriptCmd.Flags().Bool("json", false, "Print as JSON instead of YAML")
}
