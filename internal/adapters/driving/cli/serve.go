package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

var (
	serveMCPPort int
	serveNoWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run background jobs and the directory watcher",
	Long: `Runs until interrupted:
  - the scheduler, which probes pipeline health and periodically
    re-indexes scheduler.watch_dirs
  - a watcher that applies file changes below scheduler.watch_dirs
  - optionally an MCP server over HTTP (--mcp-port)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveMCPPort, "mcp-port", 0, "also serve MCP over HTTP on this port (0 = off)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "do not watch scheduler.watch_dirs for changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	r, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(commandContext(cmd))
	dirs := r.Settings.Scheduler.WatchDirs

	if r.Scheduler != nil {
		g.Go(func() error {
			return ignoreCancel(r.Scheduler.Start(ctx))
		})
		if len(dirs) > 0 {
			g.Go(func() error {
				// Failures are recorded in the job history.
				if err := r.Scheduler.RunNow(ctx, domain.TaskIDReindex); err != nil {
					logger.Warn("initial reindex: %v", err)
				}
				return nil
			})
		}
	}

	if len(dirs) > 0 && !serveNoWatch {
		w := newWatcher(cmd, r, dirs)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	if serveMCPPort > 0 {
		server, err := newMCPServer(r)
		if err != nil {
			return err
		}
		addr := mcpAddr("", serveMCPPort)
		cmd.Printf("MCP server listening on %s\n", addr)
		g.Go(func() error {
			return server.RunHTTP(ctx, addr)
		})
	}

	if r.Scheduler == nil && len(dirs) == 0 && serveMCPPort == 0 {
		return errors.New("nothing to serve: set scheduler.watch_dirs or --mcp-port")
	}

	cmd.Println("sercha-rag serving, press Ctrl+C to stop")
	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
