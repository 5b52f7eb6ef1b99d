package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// ErrJobRunning is returned by RunNow when the job is already running.
var ErrJobRunning = errors.New("job is already running")

// historyLimit is how many results are kept per job.
const historyLimit = 100

// Job is a unit of background work run on a cron schedule.
type Job interface {
	// Name identifies the job in logs and in the scheduler store.
	Name() string

	// Run does the work and reports how many items it processed.
	Run(ctx context.Context) (int, error)
}

// scheduledJob is a registered job and its cron state.
type scheduledJob struct {
	job      Job
	schedule string
	entry    cron.EntryID
	running  atomic.Bool
}

// Scheduler runs jobs on cron schedules. A job never overlaps itself.
// Results are recorded in the store when one is set.
type Scheduler struct {
	cron  *cron.Cron
	store driven.SchedulerStore

	mu      sync.Mutex
	jobs    map[string]*scheduledJob
	ctx     context.Context
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. The store is optional.
func NewScheduler(store driven.SchedulerStore) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithLogger(cronLogger{}), cron.WithChain(cron.Recover(cronLogger{}))),
		store: store,
		jobs:  make(map[string]*scheduledJob),
		ctx:   context.Background(),
	}
}

// Add registers job on a standard five-field cron expression or a
// descriptor such as "@every 1m".
func (s *Scheduler) Add(schedule string, job Job) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("%w: job %s: schedule %q: %w", domain.ErrInvalidInput, job.Name(), schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("%w: job %s is already registered", domain.ErrInvalidInput, job.Name())
	}

	sj := &scheduledJob{job: job, schedule: schedule}
	id, err := s.cron.AddFunc(schedule, func() { s.execute(s.context(), sj) })
	if err != nil {
		return fmt.Errorf("%w: job %s: %w", domain.ErrInvalidInput, job.Name(), err)
	}
	sj.entry = id
	s.jobs[job.Name()] = sj
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Start runs the cron loop. It blocks until ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.ctx = ctx
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.cron.Start()
	s.registerTasks(ctx)
	logger.Info("scheduler started with %d jobs", len(s.Jobs()))

	select {
	case <-ctx.Done():
		_ = s.Stop()
		return ctx.Err()
	case <-stopCh:
		return nil
	}
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
	logger.Info("scheduler stopped")
	return nil
}

// RunNow runs a job immediately and waits for it. It returns ErrJobRunning
// if the job is already running and the job's error otherwise.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	sj, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, name)
	}

	if !sj.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", name, ErrJobRunning)
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer sj.running.Store(false)

	return s.run(ctx, sj)
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// execute is the cron callback.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) {
	if !sj.running.CompareAndSwap(false, true) {
		logger.Debug("scheduler: %s still running, skipping", sj.job.Name())
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer sj.running.Store(false)

	_ = s.run(ctx, sj)
}

// run executes the job and records its outcome.
func (s *Scheduler) run(ctx context.Context, sj *scheduledJob) error {
	name := sj.job.Name()
	result := &domain.TaskResult{
		TaskID:    name,
		StartedAt: time.Now(),
	}

	logger.Debug("scheduler: running %s", name)
	items, err := sj.job.Run(ctx)
	result.EndedAt = time.Now()
	result.ItemsProcessed = items

	if err != nil {
		result.Error = err.Error()
		logger.Warn("scheduler: %s failed: %v", name, err)
	} else {
		result.Success = true
	}

	s.record(ctx, sj, result)
	return err
}

// record persists the task state and the run result.
func (s *Scheduler) record(ctx context.Context, sj *scheduledJob, result *domain.TaskResult) {
	if s.store == nil {
		return
	}
	// A cancelled run still gets recorded.
	ctx = context.WithoutCancel(ctx)

	task, err := s.store.GetTask(ctx, result.TaskID)
	if err != nil || task == nil {
		task = &domain.ScheduledTask{ID: result.TaskID}
	}
	task.Schedule = sj.schedule
	task.Enabled = true
	task.LastRun = result.StartedAt
	task.NextRun = s.cron.Entry(sj.entry).Next
	if result.Success {
		task.LastError = ""
		task.LastSuccess = result.EndedAt
	} else {
		task.LastError = result.Error
	}

	if err := s.store.SaveTask(ctx, task); err != nil {
		logger.Warn("scheduler: failed to save task %s: %v", task.ID, err)
	}
	if err := s.store.RecordResult(ctx, result); err != nil {
		logger.Warn("scheduler: failed to record result for %s: %v", task.ID, err)
	}
	if err := s.store.PruneHistory(ctx, historyLimit); err != nil {
		logger.Warn("scheduler: failed to prune history: %v", err)
	}
}

// registerTasks records every registered job in the store and disables
// stored jobs that are no longer registered.
func (s *Scheduler) registerTasks(ctx context.Context) {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	jobs := make(map[string]*scheduledJob, len(s.jobs))
	for name, sj := range s.jobs {
		jobs[name] = sj
	}
	s.mu.Unlock()

	stored, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to list tasks: %v", err)
		return
	}
	for i := range stored {
		task := &stored[i]
		if _, ok := jobs[task.ID]; ok || !task.Enabled {
			continue
		}
		task.Enabled = false
		task.NextRun = time.Time{}
		if err := s.store.SaveTask(ctx, task); err != nil {
			logger.Warn("scheduler: failed to disable task %s: %v", task.ID, err)
		}
	}

	for name, sj := range jobs {
		task, err := s.store.GetTask(ctx, name)
		if err != nil {
			logger.Warn("scheduler: failed to load task %s: %v", name, err)
			continue
		}
		if task == nil {
			task = &domain.ScheduledTask{ID: name}
		}
		task.Schedule = sj.schedule
		task.Enabled = true
		task.NextRun = s.cron.Entry(sj.entry).Next
		if err := s.store.SaveTask(ctx, task); err != nil {
			logger.Warn("scheduler: failed to save task %s: %v", name, err)
		}
	}
}

// cronLogger routes cron's own messages to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.L().Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.L().Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
