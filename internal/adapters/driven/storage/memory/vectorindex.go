package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an in-memory implementation of driven.VectorIndex using
// brute-force cosine similarity. Contents are lost when the process exits.
type VectorIndex struct {
	mu        sync.RWMutex
	dimension int
	metric    domain.Metric
	chunks    map[string]domain.Chunk
	byDoc     map[string]map[string]struct{}
	seq       int64
}

// NewVectorIndex creates a new in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		chunks: make(map[string]domain.Chunk),
		byDoc:  make(map[string]map[string]struct{}),
	}
}

// EnsureCollection fixes the dimension on first call.
func (v *VectorIndex) EnsureCollection(_ context.Context, dimension int, metric domain.Metric) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.dimension == 0 {
		v.dimension = dimension
		v.metric = metric
		return nil
	}
	if v.dimension != dimension || v.metric != metric {
		return fmt.Errorf("%w: collection has %d dimensions (%s), requested %d (%s)",
			domain.ErrSchemaMismatch, v.dimension, v.metric, dimension, metric)
	}
	return nil
}

// Upsert stores chunks keyed by ID, keeping the sequence of existing chunks.
func (v *VectorIndex) Upsert(_ context.Context, chunks []domain.Chunk) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkDimensions(chunks); err != nil {
		return err
	}
	v.upsertLocked(chunks)
	return nil
}

// Replace writes chunks and drops the document's higher-indexed chunks
// under one write lock, so readers never see a mix of the two sets.
func (v *VectorIndex) Replace(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	if err := domain.ValidateChunkSet(documentID, chunks); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkDimensions(chunks); err != nil {
		return err
	}
	v.upsertLocked(chunks)

	ids := v.byDoc[documentID]
	for id := range ids {
		if v.chunks[id].Index >= len(chunks) {
			delete(v.chunks, id)
			delete(ids, id)
		}
	}
	if len(ids) == 0 {
		delete(v.byDoc, documentID)
	}
	return nil
}

func (v *VectorIndex) checkDimensions(chunks []domain.Chunk) error {
	if v.dimension == 0 && len(chunks) > 0 {
		return fmt.Errorf("%w: collection does not exist", domain.ErrSchemaMismatch)
	}
	for i := range chunks {
		if len(chunks[i].Vector) != v.dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, collection has %d",
				domain.ErrSchemaMismatch, chunks[i].ID, len(chunks[i].Vector), v.dimension)
		}
	}
	return nil
}

func (v *VectorIndex) upsertLocked(chunks []domain.Chunk) {
	for _, c := range chunks {
		if existing, ok := v.chunks[c.ID]; ok {
			c.Seq = existing.Seq
			if existing.DocumentID != c.DocumentID {
				delete(v.byDoc[existing.DocumentID], c.ID)
			}
		} else {
			v.seq++
			c.Seq = v.seq
		}
		c.Vector = append([]float32(nil), c.Vector...)
		v.chunks[c.ID] = c

		ids, ok := v.byDoc[c.DocumentID]
		if !ok {
			ids = make(map[string]struct{})
			v.byDoc[c.DocumentID] = ids
		}
		ids[c.ID] = struct{}{}
	}
}

// Search scores every stored chunk against query.
func (v *VectorIndex) Search(_ context.Context, query []float32, topK int, filters map[string]string) ([]domain.Hit, error) {
	if err := domain.ValidateFilters(filters); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.dimension == 0 {
		return nil, nil
	}
	if len(query) != v.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			domain.ErrSchemaMismatch, len(query), v.dimension)
	}

	hits := make([]domain.Hit, 0, len(v.chunks))
	for _, c := range v.chunks {
		if !domain.MatchesFilters(&c, filters) {
			continue
		}
		hits = append(hits, domain.Hit{Chunk: c, Score: domain.Cosine(query, c.Vector)})
	}

	domain.SortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	for i := range hits {
		hits[i].Chunk.Vector = append([]float32(nil), hits[i].Chunk.Vector...)
	}
	return hits, nil
}

// Delete removes every chunk of a document.
func (v *VectorIndex) Delete(_ context.Context, documentID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for id := range v.byDoc[documentID] {
		delete(v.chunks, id)
	}
	delete(v.byDoc, documentID)
	return nil
}

// Count returns the number of stored chunks.
func (v *VectorIndex) Count(_ context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.chunks), nil
}

// Ping always succeeds.
func (v *VectorIndex) Ping(_ context.Context) error {
	return nil
}

// Close releases resources.
func (v *VectorIndex) Close() error {
	return nil
}
