package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/watch"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
)

var (
	watchDebounce  time.Duration
	watchNoInitial bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir...]",
	Short: "Keep the index in sync with directories",
	Long: `Indexes every .txt, .md and .markdown file below the given
directories, then re-indexes files as they change and removes deleted
files from the index. Runs until interrupted.

With no arguments the directories come from scheduler.watch_dirs in the
config file.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before changes are applied")
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip indexing existing files on start")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	r, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	dirs := watchDirs(r, args)
	if len(dirs) == 0 {
		return errors.New("no directories to watch: pass them as arguments or set scheduler.watch_dirs")
	}

	ctx := commandContext(cmd)
	if !watchNoInitial {
		n, err := services.NewReindexJob(r.Retrieval, dirs).Run(ctx)
		cmd.Printf("Indexed %d file(s)\n", n)
		if err != nil {
			cmd.PrintErrf("Some files failed: %v\n", err)
		}
	}

	w := newWatcher(cmd, r, dirs)
	cmd.Printf("Watching %d director(ies), press Ctrl+C to stop\n", len(dirs))
	return w.Run(ctx)
}

// watchDirs returns args, or the configured directories when args is empty.
func watchDirs(r *Runtime, args []string) []string {
	if len(args) > 0 {
		return args
	}
	return r.Settings.Scheduler.WatchDirs
}

func newWatcher(cmd *cobra.Command, r *Runtime, dirs []string) *watch.Watcher {
	return watch.New(r.Retrieval, dirs,
		watch.WithDebounce(watchDebounce),
		watch.WithOnApply(func(c watch.Change, err error) {
			if err != nil {
				cmd.PrintErrf("✗ %s %s: %v\n", c.Type, c.Path, describe(err))
				return
			}
			cmd.Printf("%s %s\n", c.Type, c.Path)
		}),
	)
}
