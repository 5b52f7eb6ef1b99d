package driving

import "context"

// Scheduler runs background jobs such as the health probe and the
// watch-directory reindex.
type Scheduler interface {
	// Start begins running scheduled jobs.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop halts scheduling and waits for running jobs to finish.
	Stop() error

	// RunNow runs a registered job immediately and waits for it.
	RunNow(ctx context.Context, name string) error
}
