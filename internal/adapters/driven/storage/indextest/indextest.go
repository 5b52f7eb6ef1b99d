// Package indextest is a behavioural test suite shared by every
// driven.VectorIndex implementation.
package indextest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/identity"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Factory returns an empty index. The suite closes it.
type Factory func(t *testing.T) driven.VectorIndex

// Chunk builds a chunk of doc at index with the given vector.
func Chunk(doc string, index int, source string, vec ...float32) domain.Chunk {
	return domain.Chunk{
		ID:         identity.ChunkID(doc, index),
		DocumentID: doc,
		Index:      index,
		Text:       doc + " chunk",
		Source:     source,
		Page:       index + 1,
		Vector:     vec,
	}
}

// Run executes the suite against indexes built by newIndex.
func Run(t *testing.T, newIndex Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, idx driven.VectorIndex)
	}{
		{"EnsureCollectionIsIdempotent", testEnsureCollection},
		{"SearchEmptyCollection", testSearchEmpty},
		{"SearchOrdersByScore", testSearchOrder},
		{"TiesBreakByInsertionOrder", testTieBreak},
		{"UpsertKeepsSequence", testUpsertKeepsSequence},
		{"Filters", testFilters},
		{"UnknownFilter", testUnknownFilter},
		{"Delete", testDelete},
		{"Replace", testReplace},
		{"ReplaceRejectsForeignChunks", testReplaceRejectsForeign},
		{"DimensionMismatch", testDimensionMismatch},
		{"PayloadRoundTrip", testPayload},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := newIndex(t)
			t.Cleanup(func() { _ = idx.Close() })
			tt.fn(t, idx)
		})
	}
}

func ensure(t *testing.T, idx driven.VectorIndex, dim int) {
	t.Helper()
	require.NoError(t, idx.EnsureCollection(context.Background(), dim, domain.MetricCosine))
}

func ids(hits []domain.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.ID
	}
	return out
}

func testEnsureCollection(t *testing.T, idx driven.VectorIndex) {
	ensure(t, idx, 3)
	ensure(t, idx, 3)
}

func testSearchEmpty(t *testing.T, idx driven.VectorIndex) {
	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	ensure(t, idx, 3)
	hits, err = idx.Search(context.Background(), []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testSearchOrder(t *testing.T, idx driven.VectorIndex) {
	ctx := context.Background()
	ensure(t, idx, 2)

	far := Chunk("doc-a", 0, "a.md", 0, 1)
	near := Chunk("doc-b", 0, "b.md", 1, 0)
	mid := Chunk("doc-c", 0, "c.md", 0.6, 0.8)
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{far, near, mid}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{near.ID, mid.ID, far.ID}, ids(hits))
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.InDelta(t, 0.6, hits[1].Score, 1e-5)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-5)

	top, err := idx.Search(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{near.ID, mid.ID}, ids(top))
}

func testTieBreak(t *testing.T, idx driven.VectorIndex) {
	ctx := context.Background()
	ensure(t, idx, 2)

	first := Chunk("doc-z", 0, "z.md", 1, 0)
	second := Chunk("doc-a", 0, "a.md", 1, 0)
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{first}))
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{second}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, ids(hits))
	assert.Less(t, hits[0].Chunk.Seq, hits[1].Chunk.Seq)
}

func testUpsertKeepsSequence(t *testing.T, idx driven.VectorIndex) {
	ctx := context.Background()
	ensure(t, idx, 2)

	a := Chunk("doc-a", 0, "a.md", 1, 0)
	b := Chunk("doc-b", 0, "b.md", 1, 0)
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{a}))
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{b}))

	a.Text = "rewritten"
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{a}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, a.ID, hits[0].Chunk.ID)
	assert.Equal(t, "rewritten", hits[0].Chunk.Text)
}

func testFilters(t *testing.T, idx driven.VectorIndex) {
	ctx := context.Background()
	ensure(t, idx, 2)

	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{
		Chunk("doc-a", 0, "a.md", 1, 0),
		Chunk("doc-a", 1, "a.md", 0.8, 0.6),
		Chunk("doc-b", 0, "b.md", 1, 0),
	}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, map[string]string{domain.FilterDocumentID: "doc-a"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "doc-a", h.Chunk.DocumentID)
	}

	hits, err = idx.Search(ctx, []float32{1, 0}, 10, map[string]string{domain.FilterSource: "b.md"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-b", hits[0].Chunk.DocumentID)

	hits, err = idx.Search(ctx, []float32{1, 0}, 10, map[string]string{
		domain.FilterDocumentID: "doc-a",
		domain.FilterSource:     "b.md",
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func testUnknownFilter(t *testing.T, idx driven.VectorIndex) {
	ensure(t, idx, 2)
	_, err := idx.Search(context.Background(), []float32{1, 0}, 10, map[string]string{"author": "kim"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func testDelete(t *testing.T, idx driven.VectorIndex) {
	ctx := context.Background()
	ensure(t, idx, 2)

	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{
		Chunk("doc-a", 0, "a.md", 1, 0),
		Chunk("doc-a", 1, "a.md", 0, 1),
		Chunk("doc-b", 0, "b.md", 1, 0),
	}))
	require.NoError(t, idx.Delete(ctx, "doc-a"))
	require.NoError(t, idx.Delete(ctx, "missing"))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-b", hits[0].Chunk.DocumentID)
}

func byID(t *testing.T, idx driven.VectorIndex) map[string]domain.Chunk {
	t.Helper()
	hits, err := idx.Search(context.Background(), []float32{1, 0}, 100, nil)
	require.NoError(t, err)
	out := make(map[string]domain.Chunk, len(hits))
	for _, h := range hits {
		out[h.Chunk.ID] = h.Chunk
	}
	return out
}

func testReplace(t *testing.T, idx driven.VectorIndex) {
	ctx := context.Background()
	ensure(t, idx, 2)

	require.NoError(t, idx.Replace(ctx, "doc-a", []domain.Chunk{
		Chunk("doc-a", 0, "a.md", 1, 0),
		Chunk("doc-a", 1, "a.md", 1, 0.1),
		Chunk("doc-a", 2, "a.md", 1, 0.2),
	}))
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{Chunk("doc-b", 2, "b.md", 1, 0.3)}))
	before := byID(t, idx)
	require.Len(t, before, 4)

	revised := []domain.Chunk{
		Chunk("doc-a", 0, "a.md", 1, 0),
		Chunk("doc-a", 1, "a.md", 1, 0.1),
	}
	revised[0].Text = "revised"
	require.NoError(t, idx.Replace(ctx, "doc-a", revised))

	after := byID(t, idx)
	require.Len(t, after, 3)
	assert.Contains(t, after, identity.ChunkID("doc-b", 2))
	assert.NotContains(t, after, identity.ChunkID("doc-a", 2))

	first := after[identity.ChunkID("doc-a", 0)]
	assert.Equal(t, "revised", first.Text)
	assert.Equal(t, before[first.ID].Seq, first.Seq)

	require.NoError(t, idx.Replace(ctx, "doc-a", nil))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, idx.Replace(ctx, "missing", nil))
}

func testReplaceRejectsForeign(t *testing.T, idx driven.VectorIndex) {
	ctx := context.Background()
	ensure(t, idx, 2)

	require.NoError(t, idx.Replace(ctx, "doc-a", []domain.Chunk{
		Chunk("doc-a", 0, "a.md", 1, 0),
		Chunk("doc-a", 1, "a.md", 1, 0.1),
	}))

	err := idx.Replace(ctx, "doc-a", []domain.Chunk{Chunk("doc-b", 0, "b.md", 1, 0)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = idx.Replace(ctx, "doc-a", []domain.Chunk{Chunk("doc-a", 1, "a.md", 1, 0)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	got := byID(t, idx)
	assert.Len(t, got, 2)
	assert.Contains(t, got, identity.ChunkID("doc-a", 1))
}

func testDimensionMismatch(t *testing.T, idx driven.VectorIndex) {
	ctx := context.Background()
	ensure(t, idx, 3)

	err := idx.EnsureCollection(ctx, 4, domain.MetricCosine)
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)

	err = idx.Upsert(ctx, []domain.Chunk{Chunk("doc", 0, "s", 1, 0)})
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func testPayload(t *testing.T, idx driven.VectorIndex) {
	ctx := context.Background()
	ensure(t, idx, 2)

	c := Chunk("doc-p", 3, "reports/q3.pdf", 0.6, 0.8)
	c.Text = "분기 보고서 요약"
	c.Start, c.End = 10, 42
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{c}))

	hits, err := idx.Search(ctx, []float32{0.6, 0.8}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	got := hits[0].Chunk
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, "doc-p", got.DocumentID)
	assert.Equal(t, 3, got.Index)
	assert.Equal(t, "분기 보고서 요약", got.Text)
	assert.Equal(t, "reports/q3.pdf", got.Source)
	assert.Equal(t, 4, got.Page)
	assert.Equal(t, 10, got.Start)
	assert.Equal(t, 42, got.End)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func testPing(t *testing.T, idx driven.VectorIndex) {
	assert.NoError(t, idx.Ping(context.Background()))
}
