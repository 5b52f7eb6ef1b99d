// Package resilient decorates a vector index with per-call timeouts and
// retries of transient failures.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultCallTimeout  = 10 * time.Second
	DefaultRetryBackoff = 200 * time.Millisecond
	maxRetryInterval    = 5 * time.Second
)

// Config holds the retry policy.
type Config struct {
	// CallTimeout bounds each attempt (default: 10s).
	CallTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RetryBackoff is the first retry delay; it doubles per retry (default: 200ms).
	RetryBackoff time.Duration
}

// Index retries calls that fail with domain.ErrIndexUnavailable. Every
// other error is returned after the first attempt.
type Index struct {
	next driven.VectorIndex
	cfg  Config
}

// New wraps next with the given policy.
func New(next driven.VectorIndex, cfg Config) *Index {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	return &Index{next: next, cfg: cfg}
}

// Unwrap returns the decorated index.
func (i *Index) Unwrap() driven.VectorIndex {
	return i.next
}

func (i *Index) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = i.cfg.RetryBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxInterval = maxRetryInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(i.cfg.MaxRetries)), ctx)
}

// retry runs fn until it succeeds, fails with a non-retryable error or the
// retries are exhausted.
func (i *Index) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := i.attempt(ctx, fn)
		if err != nil && !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, i.newBackOff(ctx), func(err error, wait time.Duration) {
		logger.Debug("index %s failed (attempt %d), retrying in %s: %v", op, attempt, wait, err)
	})

	if err != nil && domain.IsRetryable(err) {
		logger.Warn("index %s failed after %d attempts: %v", op, attempt, err)
	}
	return err
}

// attempt runs fn once under the per-call timeout. Running out of that
// budget while the caller still waits counts as the index being unavailable.
func (i *Index) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, i.cfg.CallTimeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !domain.IsRetryable(err) {
		return fmt.Errorf("%w: timed out after %s: %w", domain.ErrIndexUnavailable, i.cfg.CallTimeout, err)
	}
	return err
}

// EnsureCollection creates or checks the collection.
func (i *Index) EnsureCollection(ctx context.Context, dimension int, metric domain.Metric) error {
	return i.retry(ctx, "ensure collection", func(ctx context.Context) error {
		return i.next.EnsureCollection(ctx, dimension, metric)
	})
}

// Upsert writes chunks. Retrying is safe because upserts are idempotent.
func (i *Index) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	return i.retry(ctx, "upsert", func(ctx context.Context) error {
		return i.next.Upsert(ctx, chunks)
	})
}

// Search queries the index.
func (i *Index) Search(ctx context.Context, query []float32, topK int, filters map[string]string) ([]domain.Hit, error) {
	var hits []domain.Hit
	err := i.retry(ctx, "search", func(ctx context.Context) error {
		var err error
		hits, err = i.next.Search(ctx, query, topK, filters)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// Delete removes a document.
func (i *Index) Delete(ctx context.Context, documentID string) error {
	return i.retry(ctx, "delete", func(ctx context.Context) error {
		return i.next.Delete(ctx, documentID)
	})
}

// Replace swaps a document's chunk set. The swap is idempotent, so a
// retry after an unavailable attempt converges on the same set.
func (i *Index) Replace(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	return i.retry(ctx, "replace", func(ctx context.Context) error {
		return i.next.Replace(ctx, documentID, chunks)
	})
}

// Count returns the number of chunks.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := i.retry(ctx, "count", func(ctx context.Context) error {
		var err error
		n, err = i.next.Count(ctx)
		return err
	})
	return n, err
}

// Ping checks connectivity once, under the per-call timeout.
func (i *Index) Ping(ctx context.Context) error {
	return i.attempt(ctx, i.next.Ping)
}

// Close closes the decorated index.
func (i *Index) Close() error {
	return i.next.Close()
}
