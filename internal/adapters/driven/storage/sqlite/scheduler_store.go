package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

var _ driven.SchedulerStore = (*jobStore)(nil)

// jobStore keeps job state in the jobs table and one row per run in
// job_runs, sharing the index database.
type jobStore struct {
	store *Store
}

const jobColumns = `name, schedule, enabled, last_run_ms, next_run_ms, last_success_ms, last_error`

func (s *jobStore) GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE name = ?`, taskID)

	task, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("reading job", err)
	}
	return &task, nil
}

func (s *jobStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY name`)
	if err != nil {
		return nil, unavailable("listing jobs", err)
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		task, err := scanJob(rows)
		if err != nil {
			return nil, unavailable("reading job", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, unavailable("listing jobs", rows.Err())
}

func (s *jobStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			schedule = excluded.schedule,
			enabled = excluded.enabled,
			last_run_ms = excluded.last_run_ms,
			next_run_ms = excluded.next_run_ms,
			last_success_ms = excluded.last_success_ms,
			last_error = excluded.last_error
	`, task.ID, task.Schedule, task.Enabled,
		toMillis(task.LastRun), toMillis(task.NextRun), toMillis(task.LastSuccess),
		task.LastError)
	return unavailable("saving job", err)
}

func (s *jobStore) DeleteTask(ctx context.Context, taskID string) error {
	_, err := s.store.db.ExecContext(ctx, `DELETE FROM jobs WHERE name = ?`, taskID)
	return unavailable("deleting job", err)
}

func (s *jobStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO job_runs (job, started_ms, ended_ms, success, error, items)
		VALUES (?, ?, ?, ?, ?, ?)
	`, result.TaskID, toMillis(result.StartedAt), toMillis(result.EndedAt),
		result.Success, result.Error, result.ItemsProcessed)
	return unavailable("recording job run", err)
}

// GetTaskHistory returns up to limit runs of a job, newest first. Runs that
// started in the same millisecond keep insertion order reversed.
func (s *jobStore) GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT job, started_ms, ended_ms, success, error, items
		FROM job_runs WHERE job = ?
		ORDER BY started_ms DESC, id DESC
		LIMIT ?
	`, taskID, limit)
	if err != nil {
		return nil, unavailable("reading job history", err)
	}
	defer rows.Close()

	var runs []domain.TaskResult
	for rows.Next() {
		var r domain.TaskResult
		var started, ended int64
		if err := rows.Scan(&r.TaskID, &started, &ended, &r.Success, &r.Error, &r.ItemsProcessed); err != nil {
			return nil, unavailable("reading job run", err)
		}
		r.StartedAt = fromMillis(started)
		r.EndedAt = fromMillis(ended)
		runs = append(runs, r)
	}
	return runs, unavailable("reading job history", rows.Err())
}

// PruneHistory keeps the newest keep runs of every job.
func (s *jobStore) PruneHistory(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM job_runs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY job ORDER BY started_ms DESC, id DESC
				) AS pos FROM job_runs
			) WHERE pos > ?
		)
	`, keep)
	return unavailable("pruning job history", err)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (domain.ScheduledTask, error) {
	var t domain.ScheduledTask
	var lastRun, nextRun, lastSuccess int64
	err := row.Scan(&t.ID, &t.Schedule, &t.Enabled, &lastRun, &nextRun, &lastSuccess, &t.LastError)
	if err != nil {
		return domain.ScheduledTask{}, err
	}
	t.LastRun = fromMillis(lastRun)
	t.NextRun = fromMillis(nextRun)
	t.LastSuccess = fromMillis(lastSuccess)
	return t, nil
}

// toMillis stores the zero time as 0.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
