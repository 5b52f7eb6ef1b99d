package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// RetrievalService ingests documents and answers semantic queries.
type RetrievalService interface {
	// Ingest chunks, embeds and indexes a document, replacing any previous
	// version stored under the same id.
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)

	// Query returns at most req.TopK results ordered by descending score.
	Query(ctx context.Context, req domain.QueryRequest) ([]domain.SearchResult, error)

	// BuildContext runs a query and packages the chunk texts for an
	// answer-generation stage.
	BuildContext(ctx context.Context, req domain.QueryRequest) (*domain.ContextPayload, error)

	// Delete removes every chunk of a document.
	Delete(ctx context.Context, documentID string) error

	// Health reports embedder and index availability.
	Health(ctx context.Context) domain.HealthStatus
}
