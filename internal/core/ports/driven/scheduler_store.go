package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// SchedulerStore persists background job state and run history so that
// `sercha-rag health` can report when jobs last ran.
type SchedulerStore interface {
	// GetTask retrieves a scheduled task by ID.
	// Returns nil and no error if the task does not exist.
	GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error)

	// ListTasks returns all scheduled tasks ordered by ID.
	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// SaveTask creates or updates a task by ID.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, taskID string) error

	// RecordResult appends a run to the task's history.
	RecordResult(ctx context.Context, result *domain.TaskResult) error

	// GetTaskHistory returns recent results, most recent first.
	GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)

	// PruneHistory keeps the most recent 'keep' results per task.
	PruneHistory(ctx context.Context, keep int) error
}
