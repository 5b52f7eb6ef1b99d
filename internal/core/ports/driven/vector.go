package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// VectorIndex stores chunk vectors with their payload and searches them by
// similarity. Implementations translate connectivity failures into
// domain.ErrIndexUnavailable and dimension conflicts into
// domain.ErrSchemaMismatch.
type VectorIndex interface {
	// EnsureCollection creates the collection on first use. A later call
	// with a different dimension fails with domain.ErrSchemaMismatch.
	EnsureCollection(ctx context.Context, dimension int, metric domain.Metric) error

	// Upsert writes chunks keyed by chunk ID. Re-upserting a chunk
	// overwrites it in place and keeps its original insertion sequence.
	Upsert(ctx context.Context, chunks []domain.Chunk) error

	// Search returns up to topK hits ordered as domain.SortHits orders them.
	Search(ctx context.Context, query []float32, topK int, filters map[string]string) ([]domain.Hit, error)

	// Delete removes every chunk of a document.
	Delete(ctx context.Context, documentID string) error

	// Replace makes chunks the complete chunk set of a document. The new
	// chunks are written and the document's other chunks removed as one
	// change: a concurrent Search sees the previous set or the new one,
	// and a failed call leaves the previous set in place. Every chunk must
	// belong to documentID. An empty set removes the document.
	Replace(ctx context.Context, documentID string, chunks []domain.Chunk) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
