package cli

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui"
)

// tuiCmd represents the tui command.
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive terminal UI",
	Long: `Launch the interactive terminal user interface for sercha-rag.

The TUI lets you run queries against your indexed documents, read the
matching chunks and check pipeline health with keyboard navigation.

Controls:
  ↑/k, ↓/j - Navigate results
  Enter    - Query / Open chunk
  n        - New query
  d        - Toggle one result per document
  Esc      - Back
  Ctrl+C   - Quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	// Add panic recovery to get stack traces
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Panic in TUI: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
		}
	}()

	r, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)

	// Start scheduler if enabled (TUI is long-running, needs background tasks)
	if r.Settings.Scheduler.Enabled && r.Scheduler != nil {
		schedulerCtx, schedulerCancel := context.WithCancel(ctx)
		defer schedulerCancel()

		go func() {
			if err := ignoreCancel(r.Scheduler.Start(schedulerCtx)); err != nil {
				// Log but don't fail - scheduler errors shouldn't block TUI
				fmt.Fprintf(os.Stderr, "scheduler stopped: %v\n", err)
			}
		}()

		defer func() {
			if err := r.Scheduler.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "scheduler stop error: %v\n", err)
			}
		}()
	}

	app, err := tui.NewApp(tui.NewPorts(r.Retrieval, r.Settings.Retrieval.DefaultTopK))
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}

	if err := app.WithContext(ctx).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
