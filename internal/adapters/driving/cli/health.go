package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// ErrDegraded is returned by the health command when a collaborator is down.
var ErrDegraded = errors.New("pipeline degraded")

var healthJSON bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the embedding model and the vector index",
	Long: `Reports whether the embedding backend loads and the vector index
answers, followed by the last run of each background job.

Exits with an error when either collaborator is unavailable.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	r, err := runtimeFor(cmd)
	if err != nil {
		return err
	}

	h := r.Retrieval.Health(commandContext(cmd))
	if healthJSON {
		if err := printJSON(cmd, h); err != nil {
			return err
		}
	} else {
		printHealth(cmd, h)
		printTasks(cmd, r)
	}

	if !h.OK() {
		return ErrDegraded
	}
	return nil
}

func printHealth(cmd *cobra.Command, h domain.HealthStatus) {
	cmd.Printf("Status:    %s\n", h.Status)
	cmd.Printf("Embedder:  %s (%s)\n", availability(h.Embedder), h.Backend)
	if h.EmbedderError != "" {
		cmd.Printf("           %s\n", h.EmbedderError)
	}
	cmd.Printf("Index:     %s (%s)\n", availability(h.Index), h.IndexBackend)
	if h.IndexError != "" {
		cmd.Printf("           %s\n", h.IndexError)
	}
}

func printTasks(cmd *cobra.Command, r *Runtime) {
	if r.Tasks == nil {
		return
	}
	tasks, err := r.Tasks.ListTasks(commandContext(cmd))
	if err != nil {
		logger.Warn("listing jobs: %v", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	cmd.Println()
	cmd.Println("Jobs:")
	for i := range tasks {
		t := &tasks[i]
		state := "ok"
		switch {
		case !t.Enabled:
			state = "disabled"
		case t.LastError != "":
			state = "failed: " + t.LastError
		case t.LastRun.IsZero():
			state = "never run"
		}
		cmd.Printf("  %-14s %-16s last %s  %s\n", t.ID, t.Schedule, formatTime(t.LastRun), state)
	}
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
