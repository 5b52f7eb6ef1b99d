package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilters(t *testing.T) {
	assert.NoError(t, ValidateFilters(nil))
	assert.NoError(t, ValidateFilters(map[string]string{
		FilterDocumentID: "doc-1",
		FilterSource:     "a.md",
	}))
	assert.ErrorIs(t, ValidateFilters(map[string]string{"author": "kim"}), ErrInvalidInput)
}

func TestMatchesFilters(t *testing.T) {
	chunk := &Chunk{DocumentID: "doc-1", Source: "security.md"}

	tests := []struct {
		name    string
		filters map[string]string
		want    bool
	}{
		{"no filters", nil, true},
		{"document matches", map[string]string{FilterDocumentID: "doc-1"}, true},
		{"document differs", map[string]string{FilterDocumentID: "doc-2"}, false},
		{"source matches", map[string]string{FilterSource: "security.md"}, true},
		{"both must match", map[string]string{FilterDocumentID: "doc-1", FilterSource: "other.md"}, false},
		{"unknown key", map[string]string{"lang": "ko"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesFilters(chunk, tt.filters))
		})
	}
}

func TestSortHits(t *testing.T) {
	hits := []Hit{
		{Chunk: Chunk{ID: "c", Seq: 3}, Score: 0.5},
		{Chunk: Chunk{ID: "b", Seq: 2}, Score: 0.9},
		{Chunk: Chunk{ID: "z", Seq: 1}, Score: 0.5},
		{Chunk: Chunk{ID: "a", Seq: 1}, Score: 0.5},
	}

	SortHits(hits)

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Chunk.ID
	}
	assert.Equal(t, []string{"b", "a", "z", "c"}, ids)
}

func TestResultFromHit(t *testing.T) {
	h := Hit{
		Chunk: Chunk{
			ID:         "doc-1#2",
			DocumentID: "doc-1",
			Index:      2,
			Text:       "보안 정책",
			Source:     "security.md",
			Page:       3,
			Vector:     []float32{1},
		},
		Score: 0.82,
	}

	assert.Equal(t, SearchResult{
		ChunkID:    "doc-1#2",
		DocumentID: "doc-1",
		ChunkIndex: 2,
		Text:       "보안 정책",
		Source:     "security.md",
		Page:       3,
		Score:      0.82,
	}, ResultFromHit(h))
}

func TestHealthStatus_OK(t *testing.T) {
	assert.True(t, HealthStatus{Embedder: true, Index: true}.OK())
	assert.False(t, HealthStatus{Embedder: true}.OK())
	assert.False(t, HealthStatus{Index: true}.OK())
}
