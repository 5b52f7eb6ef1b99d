package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure EmbeddingManager implements the interface.
var _ driven.Embedder = (*EmbeddingManager)(nil)

// EmbeddingLoader constructs an embedding backend. The manager calls it at
// most once per backend until that backend is Reset.
type EmbeddingLoader = driven.EmbeddingLoader

// EmbeddingManagerConfig configures an EmbeddingManager.
type EmbeddingManagerConfig struct {
	// Default is the backend used by the manager's own Embedder methods.
	Default string

	// MaxConcurrent bounds backend calls in flight across all callers (default: 4).
	MaxConcurrent int

	// BatchSize is the largest batch sent to a backend in one call (default: 32).
	BatchSize int

	// RequestsPerSecond limits backend calls when positive.
	RequestsPerSecond float64

	// Timeout bounds each backend call when positive.
	Timeout time.Duration
}

// EmbeddingManager lazily loads embedding backends, caches them for the
// life of the process and bounds the work sent to them.
type EmbeddingManager struct {
	cfg     EmbeddingManagerConfig
	loaders map[string]EmbeddingLoader
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu     sync.Mutex
	models map[string]*modelEntry
}

// modelEntry holds one backend's load state.
type modelEntry struct {
	mu     sync.Mutex
	loaded atomic.Bool
	svc    driven.EmbeddingService
	err    error
}

// NewEmbeddingManager creates a manager for the given loaders. Nothing is
// loaded until first use.
func NewEmbeddingManager(cfg EmbeddingManagerConfig, loaders map[string]EmbeddingLoader) *EmbeddingManager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	m := &EmbeddingManager{
		cfg:     cfg,
		loaders: make(map[string]EmbeddingLoader, len(loaders)),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		models:  make(map[string]*modelEntry),
	}
	for id, l := range loaders {
		m.loaders[id] = l
	}
	if cfg.RequestsPerSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.MaxConcurrent)
	}
	return m
}

// Backend returns the default backend id.
func (m *EmbeddingManager) Backend() string {
	return m.cfg.Default
}

// Embed embeds text with the default backend.
func (m *EmbeddingManager) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embed(ctx, m.cfg.Default, text)
}

// EmbedBatch embeds texts with the default backend, in input order.
func (m *EmbeddingManager) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return m.embedBatch(ctx, m.cfg.Default, texts)
}

// Dimensions loads the default backend if needed and returns its vector size.
func (m *EmbeddingManager) Dimensions(ctx context.Context) (int, error) {
	return m.dimensions(ctx, m.cfg.Default)
}

// Ping loads the default backend if needed and checks it is reachable.
func (m *EmbeddingManager) Ping(ctx context.Context) error {
	return m.ping(ctx, m.cfg.Default)
}

// Use returns an Embedder bound to another registered backend. It shares
// this manager's model cache and worker pool.
func (m *EmbeddingManager) Use(backend string) driven.Embedder {
	return &boundEmbedder{m: m, backend: backend}
}

// Loaded reports whether a backend has been loaded successfully.
func (m *EmbeddingManager) Loaded(backend string) bool {
	m.mu.Lock()
	e, ok := m.models[backend]
	m.mu.Unlock()
	if !ok || !e.loaded.Load() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.svc != nil
}

// Reset closes and forgets a backend, clearing a sticky load failure.
// The next use loads it again.
func (m *EmbeddingManager) Reset(backend string) error {
	m.mu.Lock()
	e, ok := m.models[backend]
	delete(m.models, backend)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.svc != nil {
		return e.svc.Close()
	}
	return nil
}

// Close closes every loaded backend.
func (m *EmbeddingManager) Close() error {
	m.mu.Lock()
	entries := m.models
	m.models = make(map[string]*modelEntry)
	m.mu.Unlock()

	var firstErr error
	for id, e := range entries {
		e.mu.Lock()
		if e.svc != nil {
			if err := e.svc.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close %s: %w", id, err)
			}
		}
		e.mu.Unlock()
	}
	return firstErr
}

// model returns the loaded backend, loading it on first use.
func (m *EmbeddingManager) model(ctx context.Context, backend string) (driven.EmbeddingService, error) {
	m.mu.Lock()
	e, ok := m.models[backend]
	if !ok {
		if _, registered := m.loaders[backend]; !registered {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: backend %q is not registered", domain.ErrModelLoad, backend)
		}
		e = &modelEntry{}
		m.models[backend] = e
	}
	m.mu.Unlock()

	if e.loaded.Load() {
		return e.result()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded.Load() {
		return e.svc, e.err
	}

	logger.Debug("loading embedding backend %s", backend)
	svc, err := m.loaders[backend](ctx)
	if err != nil {
		// Cancellation is not a load failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.err = fmt.Errorf("%w: %s: %w", domain.ErrModelLoad, backend, err)
		e.loaded.Store(true)
		logger.Warn("embedding backend %s failed to load: %v", backend, err)
		return nil, e.err
	}
	if svc == nil || svc.Dimensions() <= 0 {
		e.err = fmt.Errorf("%w: %s: backend reports no dimensions", domain.ErrModelLoad, backend)
		e.loaded.Store(true)
		return nil, e.err
	}

	e.svc = svc
	e.loaded.Store(true)
	logger.Info("embedding backend %s loaded (%s, %d dims)", backend, svc.ModelName(), svc.Dimensions())
	return svc, nil
}

func (e *modelEntry) result() (driven.EmbeddingService, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.svc, e.err
}

func (m *EmbeddingManager) dimensions(ctx context.Context, backend string) (int, error) {
	svc, err := m.model(ctx, backend)
	if err != nil {
		return 0, err
	}
	return svc.Dimensions(), nil
}

func (m *EmbeddingManager) ping(ctx context.Context, backend string) error {
	svc, err := m.model(ctx, backend)
	if err != nil {
		return err
	}
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrModelRuntime, backend, err)
	}
	return nil
}

func (m *EmbeddingManager) embed(ctx context.Context, backend, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", domain.ErrEmbeddingInput)
	}

	vecs, err := m.embedBatch(ctx, backend, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *EmbeddingManager) embedBatch(ctx context.Context, backend string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", domain.ErrEmbeddingInput, i)
		}
	}

	svc, err := m.model(ctx, backend)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += m.cfg.BatchSize {
		end := min(start+m.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := m.call(gctx, svc, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// call sends one batch to the backend under the worker pool and validates
// and normalises the result.
func (m *EmbeddingManager) call(ctx context.Context, svc driven.EmbeddingService, batch []string) ([][]float32, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.sem.Release(1)

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	callCtx := ctx
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	vecs, err := svc.EmbedBatch(callCtx, batch)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrModelRuntime, svc.ModelName(), err)
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts",
			domain.ErrModelRuntime, svc.ModelName(), len(vecs), len(batch))
	}

	dims := svc.Dimensions()
	for i, vec := range vecs {
		if len(vec) != dims {
			return nil, fmt.Errorf("%w: %s returned %d dimensions, want %d",
				domain.ErrModelRuntime, svc.ModelName(), len(vec), dims)
		}
		if !domain.Normalize(vec) {
			return nil, fmt.Errorf("%w: text %q has no embeddable content",
				domain.ErrEmbeddingInput, domain.Truncate(batch[i], 48))
		}
	}
	return vecs, nil
}

// boundEmbedder is an Embedder view of one backend of a manager.
type boundEmbedder struct {
	m       *EmbeddingManager
	backend string
}

func (b *boundEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.m.embed(ctx, b.backend, text)
}

func (b *boundEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return b.m.embedBatch(ctx, b.backend, texts)
}

func (b *boundEmbedder) Dimensions(ctx context.Context) (int, error) {
	return b.m.dimensions(ctx, b.backend)
}

func (b *boundEmbedder) Backend() string {
	return b.backend
}

func (b *boundEmbedder) Ping(ctx context.Context) error {
	return b.m.ping(ctx, b.backend)
}
