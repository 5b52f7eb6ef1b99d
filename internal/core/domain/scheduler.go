package domain

import "time"

// ScheduledTask is the persisted state of a recurring background job.
type ScheduledTask struct {
	// ID is the job name, unique per scheduler.
	ID string

	// Schedule is the cron expression the job runs on.
	Schedule string

	// LastRun is when the job last started.
	LastRun time.Time

	// NextRun is when the cron schedule fires next.
	NextRun time.Time

	// LastError contains the last error message, if any.
	LastError string

	// LastSuccess is when the job last completed without error.
	LastSuccess time.Time

	// Enabled indicates whether the job is registered.
	Enabled bool
}

// TaskResult is the outcome of one job execution.
type TaskResult struct {
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	// ItemsProcessed counts documents re-ingested or probes run.
	ItemsProcessed int
}

// Built-in job names.
const (
	TaskIDHealthProbe = "health-probe"
	TaskIDReindex     = "reindex"
)
