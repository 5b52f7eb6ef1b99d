package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/identity"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driving.RetrievalService = (*Pipeline)(nil)

// queryPreview is how much of a query is quoted in errors and logs.
const queryPreview = 48

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Pipeline chunks, embeds and indexes documents and answers queries
// against the index.
type Pipeline struct {
	embedder driven.Embedder
	index    driven.VectorIndex
	chunker  driven.PostProcessorPipeline
	cfg      domain.RetrievalSettings
	locks    *keyedMutex

	indexBackend string
}

// NewPipeline creates a retrieval pipeline. Zero limits in cfg fall back
// to the defaults of domain.DefaultSettings.
func NewPipeline(
	embedder driven.Embedder,
	index driven.VectorIndex,
	chunker driven.PostProcessorPipeline,
	cfg domain.RetrievalSettings,
) *Pipeline {
	defaults := domain.DefaultSettings().Retrieval
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = defaults.DefaultTopK
	}
	if cfg.MaxTopK < cfg.DefaultTopK {
		cfg.MaxTopK = max(defaults.MaxTopK, cfg.DefaultTopK)
	}
	if cfg.CandidateFactor <= 0 {
		cfg.CandidateFactor = defaults.CandidateFactor
	}

	return &Pipeline{
		embedder: embedder,
		index:    index,
		chunker:  chunker,
		cfg:      cfg,
		locks:    newKeyedMutex(),
	}
}

// SetIndexBackend sets the index name reported by Health.
func (p *Pipeline) SetIndexBackend(name string) {
	p.indexBackend = name
}

// DefaultTopK returns the result count used when a caller does not ask
// for one.
func (p *Pipeline) DefaultTopK() int {
	return p.cfg.DefaultTopK
}

// Ingest replaces the indexed chunks of a document in one index call, so
// concurrent queries see the previous version or the new one. A failure or
// cancellation before that call leaves the previous version in place.
func (p *Pipeline) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("ingest %q: %w", ingestLabel(req), domain.ErrEmptyDocument)
	}
	if p.cfg.MaxDocumentBytes > 0 && len(req.Text) > p.cfg.MaxDocumentBytes {
		return nil, fmt.Errorf("ingest %q: %w: text is %d bytes, limit is %d",
			ingestLabel(req), domain.ErrInvalidInput, len(req.Text), p.cfg.MaxDocumentBytes)
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Source) == "" {
			return nil, fmt.Errorf("ingest: %w: one of id, title or source is required", domain.ErrInvalidInput)
		}
		id = identity.DocumentID(req.Title, req.Source)
	}

	unlock := p.locks.Lock(id)
	defer unlock()

	doc := &domain.Document{
		ID:       id,
		Title:    req.Title,
		Text:     req.Text,
		Source:   req.Source,
		Metadata: req.Metadata,
	}

	chunks, err := p.chunker.Process(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", id, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingest %s: %w", id, domain.ErrEmptyDocument)
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", id, err)
	}
	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}

	if err := p.index.EnsureCollection(ctx, len(vectors[0]), domain.MetricCosine); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", id, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", id, err)
	}
	if err := p.index.Replace(ctx, id, chunks); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", id, err)
	}

	logger.Info("indexed %s (%d chunks)", id, len(chunks))
	return &domain.IngestResult{DocumentID: id, ChunkCount: len(chunks)}, nil
}

// Query embeds the query text and returns the best matching chunks.
func (p *Pipeline) Query(ctx context.Context, req domain.QueryRequest) ([]domain.SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	label := domain.Truncate(query, queryPreview)

	if query == "" {
		return nil, fmt.Errorf("query: %w: query is empty", domain.ErrInvalidInput)
	}
	if req.TopK <= 0 || req.TopK > p.cfg.MaxTopK {
		return nil, fmt.Errorf("query %q: %w: top_k must be between 1 and %d",
			label, domain.ErrInvalidInput, p.cfg.MaxTopK)
	}
	if err := domain.ValidateFilters(req.Filters); err != nil {
		return nil, fmt.Errorf("query %q: %w: filters support only %s and %s",
			label, err, domain.FilterDocumentID, domain.FilterSource)
	}

	logger.Debug("query %q top_k=%d filters=%v", label, req.TopK, req.Filters)

	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", label, err)
	}

	dedupe := p.cfg.Dedupe
	if req.Dedupe != nil {
		dedupe = *req.Dedupe
	}
	candidates := req.TopK
	if dedupe {
		candidates *= p.cfg.CandidateFactor
	}

	hits, err := p.index.Search(ctx, vec, candidates, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", label, err)
	}
	domain.SortHits(hits)

	return p.rank(hits, req.TopK, dedupe), nil
}

// rank applies the score threshold and optional per-document dedupe to
// sorted hits and keeps the first topK.
func (p *Pipeline) rank(hits []domain.Hit, topK int, dedupe bool) []domain.SearchResult {
	results := make([]domain.SearchResult, 0, min(topK, len(hits)))
	seen := make(map[string]struct{})

	for _, h := range hits {
		if h.Score < p.cfg.MinScore {
			continue
		}
		if dedupe {
			if _, ok := seen[h.Chunk.DocumentID]; ok {
				continue
			}
			seen[h.Chunk.DocumentID] = struct{}{}
		}
		results = append(results, domain.ResultFromHit(h))
		if len(results) == topK {
			break
		}
	}
	return results
}

// BuildContext runs a query and packages the chunk texts for an answer
// generator.
func (p *Pipeline) BuildContext(ctx context.Context, req domain.QueryRequest) (*domain.ContextPayload, error) {
	results, err := p.Query(ctx, req)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return &domain.ContextPayload{
		Query:   strings.TrimSpace(req.Query),
		Context: texts,
		Sources: results,
	}, nil
}

// Delete removes every chunk of a document. Deleting an unknown document
// is not an error.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return fmt.Errorf("delete: %w: document id is required", domain.ErrInvalidInput)
	}

	unlock := p.locks.Lock(documentID)
	defer unlock()

	if err := p.index.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete %s: %w", documentID, err)
	}
	logger.Info("deleted %s", documentID)
	return nil
}

// Health pings the embedder and the index.
func (p *Pipeline) Health(ctx context.Context) domain.HealthStatus {
	h := domain.HealthStatus{
		Backend:      p.embedder.Backend(),
		IndexBackend: p.indexBackend,
	}

	if err := p.embedder.Ping(ctx); err != nil {
		logger.Warn("embedder %s unhealthy: %v", h.Backend, err)
		h.EmbedderError = healthMessage(err)
	} else {
		h.Embedder = true
	}

	if err := p.index.Ping(ctx); err != nil {
		logger.Warn("vector index unhealthy: %v", err)
		h.IndexError = healthMessage(err)
	} else {
		h.Index = true
	}

	h.Status = StatusDegraded
	if h.OK() {
		h.Status = StatusOK
	}
	return h
}

// healthMessage describes a probe failure without leaking internals.
func healthMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health probe timed out"
	}
	return domain.Describe(err).Message
}

// ingestLabel names a request in errors before its id is known.
func ingestLabel(req domain.IngestRequest) string {
	for _, s := range []string{req.ID, req.Title, req.Source} {
		if s = strings.TrimSpace(s); s != "" {
			return domain.Truncate(s, queryPreview)
		}
	}
	return "untitled"
}
