package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/canvas/internal/presentation/tui"
	"github.com/aretw0/canvas/pkg/domain"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage stored wizard threads",
	Long:  `List, inspect, and remove the wizard state kept by the configured store.`,
}

var threadsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		ids, err := b.store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing threads: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No stored threads found.")
			return nil
		}
		slices.Sort(ids)
		fmt.Fprintln(out, "Stored Threads:")
		for _, id := range ids {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Show the canvas of a thread",
	Long: `Renders the thread's answers as a Markdown canvas when stdout is a terminal,
and prints the raw state as JSON otherwise (or with --json).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID := args[0]
		asJSON, _ := cmd.Flags().GetBool("json")

		b, err := openBackend(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		state, err := b.store.Load(cmd.Context(), threadID)
		if errors.Is(err, domain.ErrThreadNotFound) {
			return fmt.Errorf("thread '%s' not found", threadID)
		}
		if err != nil {
			return fmt.Errorf("loading thread '%s': %w", threadID, err)
		}

		if asJSON || !isTerminal(cmd.OutOrStdout()) {
			return printJSON(cmd.OutOrStdout(), state)
		}

		script, err := loadScript(cfg)
		if err != nil {
			return err
		}
		rendered, err := tui.NewRenderer(0).Canvas(script, state)
		if err != nil {
			return fmt.Errorf("rendering canvas: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), rendered)
		return nil
	},
}

var threadsRmCmd = &cobra.Command{
	Use:   "rm <thread-id>...",
	Short: "Remove one or more threads",
	Long:  `Removes the wizard state and, for durable drivers, the ChatKit thread.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		var failed []error
		for _, threadID := range args {
			err := b.store.Delete(cmd.Context(), threadID)
			if err == nil && b.threads != nil {
				err = b.threads.Delete(cmd.Context(), threadID)
			}
			if err != nil {
				failed = append(failed, fmt.Errorf("removing '%s': %w", threadID, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed thread '%s'\n", threadID)
		}
		return errors.Join(failed...)
	},
}

func init() {
	rootCmd.AddCommand(threadsCmd)
	threadsCmd.AddCommand(threadsLsCmd)
	threadsCmd.AddCommand(threadsShowCmd)
	threadsCmd.AddCommand(threadsRmCmd)

	threadsShowCmd.Flags().Bool("json", false, "Print the raw state as JSON")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
