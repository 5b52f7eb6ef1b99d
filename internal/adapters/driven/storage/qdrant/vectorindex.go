package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// Config holds configuration for the Qdrant index.
type Config struct {
	// URL is the REST endpoint (default: http://localhost:6333).
	URL string

	// APIKey is sent as the api-key header when set.
	APIKey string

	// Collection is the collection name (required).
	Collection string

	// Timeout is the HTTP client timeout (default: 30s).
	Timeout time.Duration
}

// Payload fields stored with every point.
const (
	fieldDocumentID = "document_id"
	fieldSource     = "source"
	fieldChunkIndex = "chunk_index"
)

// VectorIndex stores chunks as Qdrant points keyed by chunk ID.
type VectorIndex struct {
	client     *client
	collection string

	mu        sync.Mutex
	dimension int
	lastSeq   int64
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type collectionInfo struct {
	Config struct {
		Params struct {
			Vectors vectorParams `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type payload struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	Page       int    `json:"page,omitempty"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Seq        int64  `json:"seq"`
	Generation int64  `json:"generation,omitempty"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector,omitempty"`
	Payload payload   `json:"payload"`
}

type scoredPoint struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload payload `json:"payload"`
}

type condition struct {
	Key   string         `json:"key"`
	Match map[string]any `json:"match,omitempty"`
	Range map[string]int `json:"range,omitempty"`
}

type filter struct {
	Must []condition `json:"must"`
}

// operation is one step of a points/batch request.
type operation struct {
	Upsert *struct {
		Points []point `json:"points"`
	} `json:"upsert,omitempty"`
	Delete *struct {
		Filter *filter `json:"filter"`
	} `json:"delete,omitempty"`
}

// maxSearchLimit caps how many candidates Search fetches while widening
// past tied scores.
const maxSearchLimit = 4096

// NewVectorIndex creates a Qdrant index. No request is made until first use.
func NewVectorIndex(cfg Config) (*VectorIndex, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant collection is required", domain.ErrInvalidInput)
	}
	c, err := newClient(cfg.URL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &VectorIndex{client: c, collection: cfg.Collection}, nil
}

func (v *VectorIndex) path(suffix string) string {
	return "/collections/" + url.PathEscape(v.collection) + suffix
}

// EnsureCollection creates the collection with payload indexes on first
// call and checks the dimension of an existing one.
func (v *VectorIndex) EnsureCollection(ctx context.Context, dimension int, metric domain.Metric) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	if metric != domain.MetricCosine {
		return fmt.Errorf("%w: metric %q", domain.ErrUnsupportedType, metric)
	}

	existing, err := v.fetchDimension(ctx)
	if err != nil {
		return err
	}
	if existing == 0 {
		if err := v.create(ctx, dimension); err != nil {
			return err
		}
		existing = dimension
	}
	if existing != dimension {
		return fmt.Errorf("%w: collection %q has %d dimensions, requested %d",
			domain.ErrSchemaMismatch, v.collection, existing, dimension)
	}

	v.mu.Lock()
	v.dimension = existing
	v.mu.Unlock()
	return nil
}

func (v *VectorIndex) create(ctx context.Context, dimension int) error {
	body := map[string]any{"vectors": vectorParams{Size: dimension, Distance: "Cosine"}}
	if err := v.client.do(ctx, http.MethodPut, v.path(""), body, nil); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	for _, field := range []string{fieldDocumentID, fieldSource} {
		idx := map[string]string{"field_name": field, "field_schema": "keyword"}
		if err := v.client.do(ctx, http.MethodPut, v.path("/index?wait=true"), idx, nil); err != nil {
			return fmt.Errorf("creating %s index: %w", field, err)
		}
	}
	logger.Info("created qdrant collection %s (%d dims)", v.collection, dimension)
	return nil
}

// fetchDimension returns the collection's vector size, or 0 when it does
// not exist.
func (v *VectorIndex) fetchDimension(ctx context.Context) (int, error) {
	var info collectionInfo
	err := v.client.do(ctx, http.MethodGet, v.path(""), nil, &info)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading collection: %w", err)
	}
	return info.Config.Params.Vectors.Size, nil
}

// knownDimension returns the cached dimension, fetching it once.
func (v *VectorIndex) knownDimension(ctx context.Context) (int, error) {
	v.mu.Lock()
	dim := v.dimension
	v.mu.Unlock()
	if dim > 0 {
		return dim, nil
	}

	dim, err := v.fetchDimension(ctx)
	if err != nil || dim == 0 {
		return dim, err
	}
	v.mu.Lock()
	v.dimension = dim
	v.mu.Unlock()
	return dim, nil
}

// nextSeq returns an increasing insertion sequence seeded from the clock.
func (v *VectorIndex) nextSeq() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	seq := time.Now().UnixNano()
	if seq <= v.lastSeq {
		seq = v.lastSeq + 1
	}
	v.lastSeq = seq
	return seq
}

// Upsert writes chunks as points. Points that already exist keep their seq
// and generation.
func (v *VectorIndex) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points, err := v.points(ctx, chunks, 0)
	if err != nil {
		return err
	}

	body := map[string]any{"points": points}
	if err := v.client.do(ctx, http.MethodPut, v.path("/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

// Replace writes chunks under a new generation and deletes the document's
// higher-indexed points in one batch request. Qdrant applies the two
// operations in order but not as one snapshot; Search hides a document's
// points from older generations whenever newer ones are among its
// candidates, so only a query that matches none of the new points can
// still see a stale one before the delete lands.
func (v *VectorIndex) Replace(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	if err := domain.ValidateChunkSet(documentID, chunks); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return v.Delete(ctx, documentID)
	}
	points, err := v.points(ctx, chunks, v.nextSeq())
	if err != nil {
		return err
	}

	stale := matchFilter(map[string]string{fieldDocumentID: documentID})
	stale.Must = append(stale.Must, condition{Key: fieldChunkIndex, Range: map[string]int{"gte": len(chunks)}})

	var upsert, del operation
	upsert.Upsert = &struct {
		Points []point `json:"points"`
	}{Points: points}
	del.Delete = &struct {
		Filter *filter `json:"filter"`
	}{Filter: stale}

	body := map[string]any{"operations": []operation{upsert, del}}
	if err := v.client.do(ctx, http.MethodPost, v.path("/points/batch?wait=true"), body, nil); err != nil {
		return fmt.Errorf("replacing points: %w", err)
	}
	return nil
}

// points converts chunks after checking their dimension. Existing points
// keep their seq; generation 0 keeps the existing generation too.
func (v *VectorIndex) points(ctx context.Context, chunks []domain.Chunk, generation int64) ([]point, error) {
	dimension, err := v.knownDimension(ctx)
	if err != nil {
		return nil, err
	}
	if dimension == 0 {
		return nil, fmt.Errorf("%w: collection %q does not exist", domain.ErrSchemaMismatch, v.collection)
	}
	for i := range chunks {
		if len(chunks[i].Vector) != dimension {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, collection has %d",
				domain.ErrSchemaMismatch, chunks[i].ID, len(chunks[i].Vector), dimension)
		}
	}

	existing, err := v.existing(ctx, chunks)
	if err != nil {
		return nil, err
	}

	points := make([]point, len(chunks))
	for i, c := range chunks {
		prev, ok := existing[c.ID]
		if !ok {
			prev.Seq = v.nextSeq()
		}
		if generation != 0 {
			prev.Generation = generation
		}
		points[i] = point{
			ID:     c.ID,
			Vector: c.Vector,
			Payload: payload{
				DocumentID: c.DocumentID,
				ChunkIndex: c.Index,
				Text:       c.Text,
				Source:     c.Source,
				Page:       c.Page,
				Start:      c.Start,
				End:        c.End,
				Seq:        prev.Seq,
				Generation: prev.Generation,
			},
		}
	}
	return points, nil
}

func (v *VectorIndex) existing(ctx context.Context, chunks []domain.Chunk) (map[string]payload, error) {
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
	}

	var found []point
	body := map[string]any{"ids": ids, "with_payload": []string{"seq", "generation"}, "with_vector": false}
	if err := v.client.do(ctx, http.MethodPost, v.path("/points"), body, &found); err != nil {
		return nil, fmt.Errorf("reading existing points: %w", err)
	}

	byID := make(map[string]payload, len(found))
	for _, p := range found {
		byID[p.ID] = p.Payload
	}
	return byID, nil
}

// Search returns the topK points most similar to query.
func (v *VectorIndex) Search(ctx context.Context, query []float32, topK int, filters map[string]string) ([]domain.Hit, error) {
	if err := domain.ValidateFilters(filters); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	dimension, err := v.knownDimension(ctx)
	if err != nil {
		return nil, err
	}
	if dimension == 0 {
		return nil, nil
	}
	if len(query) != dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			domain.ErrSchemaMismatch, len(query), dimension)
	}

	f := matchFilter(filters)
	limit := min(topK*2, maxSearchLimit)
	for {
		scored, err := v.search(ctx, query, limit, f)
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		hits := toHits(latestGeneration(scored))
		domain.SortHits(hits)

		// A full page may end inside a run of scores tied with the topK
		// boundary, whose order the server does not break by seq.
		widen := len(scored) == limit && limit < maxSearchLimit
		if widen && (len(hits) < topK || scored[len(scored)-1].Score >= hits[topK-1].Score) {
			limit = min(limit*2, maxSearchLimit)
			continue
		}
		if len(hits) > topK {
			hits = hits[:topK]
		}
		return hits, nil
	}
}

func (v *VectorIndex) search(ctx context.Context, query []float32, limit int, f *filter) ([]scoredPoint, error) {
	body := map[string]any{
		"vector":       query,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if f != nil {
		body["filter"] = f
	}

	var scored []scoredPoint
	err := v.client.do(ctx, http.MethodPost, v.path("/points/search"), body, &scored)
	if err != nil && !errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("searching points: %w", err)
	}
	return scored, err
}

// latestGeneration drops points whose document has a newer generation
// among the candidates.
func latestGeneration(scored []scoredPoint) []scoredPoint {
	newest := make(map[string]int64)
	for _, p := range scored {
		if p.Payload.Generation > newest[p.Payload.DocumentID] {
			newest[p.Payload.DocumentID] = p.Payload.Generation
		}
	}
	kept := make([]scoredPoint, 0, len(scored))
	for _, p := range scored {
		if p.Payload.Generation == newest[p.Payload.DocumentID] {
			kept = append(kept, p)
		}
	}
	return kept
}

func toHits(scored []scoredPoint) []domain.Hit {
	hits := make([]domain.Hit, len(scored))
	for i, p := range scored {
		hits[i] = domain.Hit{
			Chunk: domain.Chunk{
				ID:         p.ID,
				DocumentID: p.Payload.DocumentID,
				Index:      p.Payload.ChunkIndex,
				Text:       p.Payload.Text,
				Source:     p.Payload.Source,
				Page:       p.Payload.Page,
				Start:      p.Payload.Start,
				End:        p.Payload.End,
				Seq:        p.Payload.Seq,
			},
			Score: p.Score,
		}
	}
	return hits
}

// matchFilter converts exact-match filters into a Qdrant filter.
func matchFilter(filters map[string]string) *filter {
	if len(filters) == 0 {
		return nil
	}
	f := &filter{}
	for _, key := range []string{fieldDocumentID, fieldSource} {
		if val, ok := filters[key]; ok {
			f.Must = append(f.Must, condition{Key: key, Match: map[string]any{"value": val}})
		}
	}
	return f
}

// Delete removes every point of a document.
func (v *VectorIndex) Delete(ctx context.Context, documentID string) error {
	return v.deleteWhere(ctx, matchFilter(map[string]string{fieldDocumentID: documentID}))
}

func (v *VectorIndex) deleteWhere(ctx context.Context, f *filter) error {
	body := map[string]any{"filter": f}
	err := v.client.do(ctx, http.MethodPost, v.path("/points/delete?wait=true"), body, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	var result struct {
		Count int `json:"count"`
	}
	err := v.client.do(ctx, http.MethodPost, v.path("/points/count"), map[string]bool{"exact": true}, &result)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return result.Count, nil
}

// Ping checks the server is live.
func (v *VectorIndex) Ping(ctx context.Context) error {
	err := v.client.health(ctx)
	if err == nil || errors.Is(err, domain.ErrIndexUnavailable) || ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
}

// Close releases idle connections.
func (v *VectorIndex) Close() error {
	v.client.http.CloseIdleConnections()
	return nil
}
