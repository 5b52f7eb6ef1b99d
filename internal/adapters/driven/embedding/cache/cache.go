// Package cache provides an embedding service decorator that memoises
// vectors by model and text, backed by an in-process LRU or by Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Store holds cached vectors. A miss is reported as ok=false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (vec []float32, ok bool, err error)
	Set(ctx context.Context, key string, vec []float32) error
	Close() error
}

// EmbeddingService wraps another embedding service with a cache.
// Cache failures are logged and treated as misses.
type EmbeddingService struct {
	next  driven.EmbeddingService
	store Store
}

// Wrap returns next decorated with store. A nil store returns next unchanged.
func Wrap(next driven.EmbeddingService, store Store) driven.EmbeddingService {
	if next == nil || store == nil {
		return next
	}
	return &EmbeddingService{next: next, store: store}
}

// Key derives the cache key for text embedded by model.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the cached vector or computes and stores it.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Key(s.next.ModelName(), text)
	if vec, ok := s.lookup(ctx, key); ok {
		return vec, nil
	}

	vec, err := s.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, key, vec)
	return vec, nil
}

// EmbedBatch serves hits from the cache and sends only misses to the
// wrapped service, preserving input order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := s.next.ModelName()
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int

	for i, text := range texts {
		keys[i] = Key(model, text)
		if vec, ok := s.lookup(ctx, keys[i]); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	vecs, err := s.next.EmbedBatch(ctx, pending)
	if err != nil {
		return nil, err
	}
	for j, i := range missing {
		if j >= len(vecs) {
			break
		}
		out[i] = vecs[j]
		s.remember(ctx, keys[i], vecs[j])
	}
	return out, nil
}

func (s *EmbeddingService) lookup(ctx context.Context, key string) ([]float32, bool) {
	vec, ok, err := s.store.Get(ctx, key)
	if err != nil {
		logger.Debug("embedding cache get failed: %v", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return vec, true
}

func (s *EmbeddingService) remember(ctx context.Context, key string, vec []float32) {
	if err := s.store.Set(ctx, key, vec); err != nil {
		logger.Debug("embedding cache set failed: %v", err)
	}
}

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.next.Dimensions()
}

// ModelName returns the wrapped service's model name.
func (s *EmbeddingService) ModelName() string {
	return s.next.ModelName()
}

// Ping checks the wrapped service.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

// Close closes the store and the wrapped service.
func (s *EmbeddingService) Close() error {
	storeErr := s.store.Close()
	if err := s.next.Close(); err != nil {
		return err
	}
	return storeErr
}

func cloneVector(values []float32) []float32 {
	if values == nil {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
