package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aretw0/canvas/internal/config"
	"github.com/aretw0/canvas/internal/logging"
)

var (
	// v holds defaults, env overrides and bound flags for every command.
	v = config.New()

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "canvas",
	Short: "Business Canvas Builder",
	Long: `Canvas walks a founder through a step-by-step business canvas inside a chat
thread. It serves the ChatKit protocol over HTTP, exposes the same wizard as
MCP tools, and manages the stored threads from the command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(loaded.Logging.Level)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.New(level, loaded.Logging.Format)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ./canvas.yaml when present)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", logging.FormatText, "Log format: text or json")
	flags.String("store", config.DriverMemory, "State store driver: memory, file, redis, sqlite")

	bindFlags(flags, map[string]string{
		"logging.level":  "log-level",
		"logging.format": "log-format",
		"store.driver":   "store",
	})
}

// bindFlags makes each flag the highest-priority source for its key. A flag
// only wins over the config file and environment when set on the command line.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %q: %v", name, err))
		}
	}
}
