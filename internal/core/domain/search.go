package domain

import "sort"

// Metric is a vector similarity metric.
type Metric string

// MetricCosine is the only metric the pipeline writes collections with.
const MetricCosine Metric = "cosine"

// Filter keys supported by every vector index.
const (
	FilterDocumentID = "document_id"
	FilterSource     = "source"
)

// ValidateFilters rejects filter keys no index can evaluate.
func ValidateFilters(filters map[string]string) error {
	for k := range filters {
		if k != FilterDocumentID && k != FilterSource {
			return ErrInvalidInput
		}
	}
	return nil
}

// MatchesFilters reports whether chunk satisfies every filter.
func MatchesFilters(chunk *Chunk, filters map[string]string) bool {
	for k, v := range filters {
		switch k {
		case FilterDocumentID:
			if chunk.DocumentID != v {
				return false
			}
		case FilterSource:
			if chunk.Source != v {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// QueryRequest is the input of a query call.
type QueryRequest struct {
	Query   string            `json:"query"`
	TopK    int               `json:"top_k"`
	Filters map[string]string `json:"filters,omitempty"`

	// Dedupe overrides the configured per-document deduplication when set.
	Dedupe *bool `json:"dedupe,omitempty"`
}

// SearchResult is a ranked chunk returned to the caller. Never persisted.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	Page       int     `json:"page,omitempty"`
	Score      float64 `json:"score"`
}

// ContextPayload is handed to an answer-generation stage.
type ContextPayload struct {
	Query   string         `json:"query"`
	Context []string       `json:"context"`
	Sources []SearchResult `json:"sources"`
}

// Hit is a candidate returned by a vector index.
type Hit struct {
	Chunk Chunk
	Score float64
}

// SortHits orders hits by descending score, then insertion order, then
// chunk id.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Chunk.Seq != hits[j].Chunk.Seq {
			return hits[i].Chunk.Seq < hits[j].Chunk.Seq
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
}

// ResultFromHit converts an index hit into a search result.
func ResultFromHit(h Hit) SearchResult {
	return SearchResult{
		ChunkID:    h.Chunk.ID,
		DocumentID: h.Chunk.DocumentID,
		ChunkIndex: h.Chunk.Index,
		Text:       h.Chunk.Text,
		Source:     h.Chunk.Source,
		Page:       h.Chunk.Page,
		Score:      h.Score,
	}
}

// HealthStatus reports availability of the pipeline's collaborators.
type HealthStatus struct {
	Status        string `json:"status"`
	Embedder      bool   `json:"embedder"`
	Index         bool   `json:"index"`
	Backend       string `json:"backend"`
	IndexBackend  string `json:"index_backend"`
	EmbedderError string `json:"embedder_error,omitempty"`
	IndexError    string `json:"index_error,omitempty"`
}

// OK reports whether both the embedder and the index are available.
func (h HealthStatus) OK() bool {
	return h.Embedder && h.Index
}
