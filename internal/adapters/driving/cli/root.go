// Package cli provides the sercha-rag command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// ErrNotConfigured is returned when a command runs before SetBootstrap.
var ErrNotConfigured = errors.New("retrieval service not configured")

// version is set by SetVersion from build flags.
var version = "dev"

// Runtime holds the services commands run against.
type Runtime struct {
	Retrieval driving.RetrievalService
	Scheduler driving.Scheduler

	// Tasks is the job history store. May be nil.
	Tasks driven.SchedulerStore

	Settings domain.Settings

	// Close releases the runtime's resources. May be nil.
	Close func() error
}

// Bootstrap builds the runtime from a config path. An empty path means the
// default config directory.
type Bootstrap func(ctx context.Context, configPath string) (*Runtime, error)

var (
	configPath string
	verbose    bool

	bootstrap Bootstrap
	rtMu      sync.Mutex
	rt        *Runtime
)

var rootCmd = &cobra.Command{
	Use:   "sercha-rag",
	Short: "Semantic retrieval over local documents",
	Long: `sercha-rag chunks, embeds and indexes text documents and answers
natural-language queries with the most relevant passages.

Documents can be ingested once, kept in sync with a watched directory,
queried from the command line, browsed in the terminal UI or served to
AI assistants over MCP.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if verbose {
			logger.SetVerbose(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file or directory (default ~/.sercha-rag)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline activity to stderr")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetBootstrap sets how the runtime is built. It runs on the first command
// that needs it.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// Execute runs the root command and releases the runtime afterwards.
func Execute(ctx context.Context) error {
	defer closeRuntime()
	return rootCmd.ExecuteContext(ctx)
}

// runtimeFor returns the runtime, building it on first use.
func runtimeFor(cmd *cobra.Command) (*Runtime, error) {
	rtMu.Lock()
	defer rtMu.Unlock()

	if rt != nil {
		return rt, nil
	}
	if bootstrap == nil {
		return nil, ErrNotConfigured
	}

	r, err := bootstrap(commandContext(cmd), configPath)
	if err != nil {
		return nil, fmt.Errorf("starting sercha-rag: %w", err)
	}
	if r == nil || r.Retrieval == nil {
		return nil, ErrNotConfigured
	}
	rt = r
	return rt, nil
}

func closeRuntime() {
	rtMu.Lock()
	defer rtMu.Unlock()

	if rt != nil && rt.Close != nil {
		if err := rt.Close(); err != nil {
			logger.Warn("closing runtime: %v", err)
		}
	}
	rt = nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// describe renders err for the user without internal detail.
func describe(err error) error {
	logger.Debug("%v", err)
	d := domain.Describe(err)
	return fmt.Errorf("%s: %s", d.Kind, d.Message)
}
