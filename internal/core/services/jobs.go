package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// BackendResetter clears a sticky embedding backend failure.
type BackendResetter interface {
	Reset(backend string) error
}

// HealthProbeJob checks the pipeline's collaborators. When the embedder is
// down it resets the backend so the next use loads it again.
type HealthProbeJob struct {
	svc      driving.RetrievalService
	resetter BackendResetter
}

// NewHealthProbeJob creates the health probe. The resetter is optional.
func NewHealthProbeJob(svc driving.RetrievalService, resetter BackendResetter) *HealthProbeJob {
	return &HealthProbeJob{svc: svc, resetter: resetter}
}

// Name returns the job name.
func (j *HealthProbeJob) Name() string {
	return domain.TaskIDHealthProbe
}

// Run probes once. A degraded pipeline is reported as an error.
func (j *HealthProbeJob) Run(ctx context.Context) (int, error) {
	h := j.svc.Health(ctx)
	if h.OK() {
		logger.Debug("health probe: ok")
		return 1, nil
	}

	if !h.Embedder && j.resetter != nil {
		if err := j.resetter.Reset(h.Backend); err != nil {
			logger.Warn("health probe: resetting %s: %v", h.Backend, err)
		}
	}
	return 1, fmt.Errorf("pipeline degraded: embedder=%t index=%t", h.Embedder, h.Index)
}

// ReindexJob re-ingests every indexable file below a set of directories.
type ReindexJob struct {
	svc  driving.RetrievalService
	dirs []string
}

// NewReindexJob creates the reindex job.
func NewReindexJob(svc driving.RetrievalService, dirs []string) *ReindexJob {
	return &ReindexJob{svc: svc, dirs: dirs}
}

// Name returns the job name.
func (j *ReindexJob) Name() string {
	return domain.TaskIDReindex
}

// Run ingests every file and returns how many were indexed. Empty files
// are skipped. Other failures are collected and the walk continues.
func (j *ReindexJob) Run(ctx context.Context) (int, error) {
	var (
		indexed int
		errs    []error
	)

	for _, dir := range j.dirs {
		paths, err := IndexableFiles(dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("walking %s: %w", dir, err))
			continue
		}

		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return indexed, err
			}

			_, err := IngestFile(ctx, j.svc, path)
			switch {
			case err == nil:
				indexed++
			case errors.Is(err, domain.ErrEmptyDocument):
				logger.Debug("reindex: skipping empty file %s", path)
			default:
				errs = append(errs, err)
			}
		}
	}

	logger.Info("reindex: %d files indexed", indexed)
	return indexed, errors.Join(errs...)
}
