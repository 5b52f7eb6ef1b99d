package qdrant

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/indextest"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/identity"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// fakeQdrant implements the subset of the Qdrant REST API the index uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	indexes     []string
	apiKeys     []string
	limits      []int
	batches     int
	failing     atomic.Bool
}

type fakeCollection struct {
	size   int
	points map[string]fakePoint
}

type fakePoint struct {
	vector  []float64
	payload map[string]any
}

type fakeUpsert struct {
	Points []struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload"`
	} `json:"points"`
}

type fakeFilter struct {
	Must []struct {
		Key   string `json:"key"`
		Match *struct {
			Value any `json:"value"`
		} `json:"match"`
		Range *struct {
			Gte *float64 `json:"gte"`
		} `json:"range"`
	} `json:"must"`
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()

	f := &fakeQdrant{collections: make(map[string]*fakeCollection)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("healthz check passed"))
	})
	mux.HandleFunc("GET /collections/{name}", f.getCollection)
	mux.HandleFunc("PUT /collections/{name}", f.createCollection)
	mux.HandleFunc("PUT /collections/{name}/index", f.createIndex)
	mux.HandleFunc("PUT /collections/{name}/points", f.upsert)
	mux.HandleFunc("POST /collections/{name}/points", f.retrieve)
	mux.HandleFunc("POST /collections/{name}/points/search", f.search)
	mux.HandleFunc("POST /collections/{name}/points/delete", f.delete)
	mux.HandleFunc("POST /collections/{name}/points/batch", f.batch)
	mux.HandleFunc("POST /collections/{name}/points/count", f.count)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.failing.Load() {
			http.Error(w, `{"status":{"error":"service unavailable"}}`, http.StatusServiceUnavailable)
			return
		}
		f.mu.Lock()
		f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok", "time": 0.001})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// collection returns the named collection or writes a 404. Called with mu held.
func (f *fakeQdrant) collection(w http.ResponseWriter, r *http.Request) *fakeCollection {
	c, ok := f.collections[r.PathValue("name")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"error":"Not found: Collection doesn't exist!"}}`))
		return nil
	}
	return c
}

func (f *fakeQdrant) getCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.collection(w, r); c != nil {
		writeResult(w, map[string]any{
			"status": "green",
			"config": map[string]any{"params": map[string]any{
				"vectors": map[string]any{"size": c.size, "distance": "Cosine"},
			}},
		})
	}
}

func (f *fakeQdrant) createCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vectors struct {
			Size     int    `json:"size"`
			Distance string `json:"distance"`
		} `json:"vectors"`
	}
	if err := decode(r, &req); err != nil || req.Vectors.Distance != "Cosine" {
		http.Error(w, `{"status":{"error":"bad request"}}`, http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.collections[r.PathValue("name")] = &fakeCollection{size: req.Vectors.Size, points: make(map[string]fakePoint)}
	f.mu.Unlock()
	writeResult(w, true)
}

func (f *fakeQdrant) createIndex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FieldName   string `json:"field_name"`
		FieldSchema string `json:"field_schema"`
	}
	_ = decode(r, &req)
	f.mu.Lock()
	f.indexes = append(f.indexes, req.FieldName+":"+req.FieldSchema)
	f.mu.Unlock()
	writeResult(w, map[string]any{"status": "completed"})
}

func (f *fakeQdrant) upsert(w http.ResponseWriter, r *http.Request) {
	var req fakeUpsert
	if err := decode(r, &req); err != nil {
		http.Error(w, `{"status":{"error":"bad request"}}`, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	if !c.apply(&req, nil) {
		http.Error(w, `{"status":{"error":"Wrong input: Vector dimension error"}}`, http.StatusBadRequest)
		return
	}
	writeResult(w, map[string]any{"status": "completed"})
}

// apply upserts points, then deletes the points matching del. It reports
// false, changing nothing, when a vector has the wrong dimension.
func (c *fakeCollection) apply(up *fakeUpsert, del *fakeFilter) bool {
	if up != nil {
		for _, p := range up.Points {
			if len(p.Vector) != c.size {
				return false
			}
		}
		for _, p := range up.Points {
			c.points[p.ID] = fakePoint{vector: p.Vector, payload: p.Payload}
		}
	}
	if del != nil {
		for id, p := range c.points {
			if matches(del, p.payload) {
				delete(c.points, id)
			}
		}
	}
	return true
}

func (f *fakeQdrant) batch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operations []struct {
			Upsert *fakeUpsert `json:"upsert"`
			Delete *struct {
				Filter *fakeFilter `json:"filter"`
			} `json:"delete"`
		} `json:"operations"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, `{"status":{"error":"bad request"}}`, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	f.batches++
	for _, op := range req.Operations {
		var del *fakeFilter
		if op.Delete != nil {
			del = op.Delete.Filter
		}
		if !c.apply(op.Upsert, del) {
			http.Error(w, `{"status":{"error":"Wrong input: Vector dimension error"}}`, http.StatusBadRequest)
			return
		}
	}
	writeResult(w, []map[string]any{{"status": "completed"}})
}

func (f *fakeQdrant) retrieve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	_ = decode(r, &req)

	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	out := []map[string]any{}
	for _, id := range req.IDs {
		if p, ok := c.points[id]; ok {
			out = append(out, map[string]any{"id": id, "payload": p.payload})
		}
	}
	writeResult(w, out)
}

func (f *fakeQdrant) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vector []float64   `json:"vector"`
		Limit  int         `json:"limit"`
		Filter *fakeFilter `json:"filter"`
	}
	_ = decode(r, &req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, req.Limit)
	c := f.collection(w, r)
	if c == nil {
		return
	}

	type scored struct {
		ID      string         `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	out := []scored{}
	for id, p := range c.points {
		if matches(req.Filter, p.payload) {
			out = append(out, scored{ID: id, Score: cosine(req.Vector, p.vector), Payload: p.payload})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	writeResult(w, out)
}

func (f *fakeQdrant) delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter *fakeFilter `json:"filter"`
	}
	_ = decode(r, &req)

	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	c.apply(nil, req.Filter)
	writeResult(w, map[string]any{"status": "completed"})
}

func (f *fakeQdrant) count(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.collection(w, r); c != nil {
		writeResult(w, map[string]int{"count": len(c.points)})
	}
}

func matches(f *fakeFilter, payload map[string]any) bool {
	if f == nil {
		return true
	}
	for _, cond := range f.Must {
		switch {
		case cond.Match != nil:
			if payload[cond.Key] != cond.Match.Value {
				return false
			}
		case cond.Range != nil && cond.Range.Gte != nil:
			n, ok := payload[cond.Key].(json.Number)
			if !ok {
				return false
			}
			v, err := n.Float64()
			if err != nil || v < *cond.Range.Gte {
				return false
			}
		}
	}
	return true
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func newTestIndex(t *testing.T, url string) *VectorIndex {
	t.Helper()
	idx, err := NewVectorIndex(Config{URL: url, APIKey: "secret", Collection: "documents"})
	require.NoError(t, err)
	return idx
}

func TestVectorIndex_Conformance(t *testing.T) {
	indextest.Run(t, func(t *testing.T) driven.VectorIndex {
		_, srv := newFakeQdrant(t)
		return newTestIndex(t, srv.URL)
	})
}

func TestNewVectorIndex(t *testing.T) {
	t.Run("requires collection", func(t *testing.T) {
		_, err := NewVectorIndex(Config{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("rejects malformed url", func(t *testing.T) {
		_, err := NewVectorIndex(Config{URL: "localhost", Collection: "documents"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("defaults", func(t *testing.T) {
		idx, err := NewVectorIndex(Config{Collection: "documents"})
		require.NoError(t, err)
		assert.Equal(t, DefaultURL, idx.client.baseURL)
		assert.Equal(t, DefaultTimeout, idx.client.http.Timeout)
	})
}

func TestVectorIndex_EnsureCollectionCreatesPayloadIndexes(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	idx := newTestIndex(t, srv.URL)

	require.NoError(t, idx.EnsureCollection(context.Background(), 3, domain.MetricCosine))
	require.NoError(t, idx.EnsureCollection(context.Background(), 3, domain.MetricCosine))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"document_id:keyword", "source:keyword"}, fake.indexes)
	assert.Equal(t, 3, fake.collections["documents"].size)
	for _, key := range fake.apiKeys {
		assert.Equal(t, "secret", key)
	}
}

func TestVectorIndex_EnsureCollectionRejectsOtherMetrics(t *testing.T) {
	_, srv := newFakeQdrant(t)
	err := newTestIndex(t, srv.URL).EnsureCollection(context.Background(), 3, "dot")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestVectorIndex_ExistingCollectionFromAnotherProcess(t *testing.T) {
	_, srv := newFakeQdrant(t)
	ctx := context.Background()

	writer := newTestIndex(t, srv.URL)
	require.NoError(t, writer.EnsureCollection(ctx, 2, domain.MetricCosine))
	require.NoError(t, writer.Upsert(ctx, []domain.Chunk{indextest.Chunk("doc", 0, "a.md", 1, 0)}))

	reader := newTestIndex(t, srv.URL)
	hits, err := reader.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	_, err = reader.Search(ctx, []float32{1, 0, 0}, 1, nil)
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestVectorIndex_ServerErrorIsUnavailable(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	idx := newTestIndex(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 2, domain.MetricCosine))

	fake.failing.Store(true)

	_, err := idx.Search(ctx, []float32{1, 0}, 5, nil)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	assert.Contains(t, err.Error(), "service unavailable")

	err = idx.Upsert(ctx, []domain.Chunk{indextest.Chunk("doc", 0, "a.md", 1, 0)})
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	assert.ErrorIs(t, idx.Ping(ctx), domain.ErrIndexUnavailable)
}

func TestVectorIndex_ClientErrorIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":{"error":"Wrong input: bad filter"}}`))
	}))
	defer srv.Close()

	_, err := newTestIndex(t, srv.URL).Count(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrIndexUnavailable)
	assert.Contains(t, err.Error(), "Wrong input: bad filter")
}

func TestVectorIndex_Unreachable(t *testing.T) {
	idx := newTestIndex(t, "http://127.0.0.1:1")
	ctx := context.Background()

	assert.ErrorIs(t, idx.Ping(ctx), domain.ErrIndexUnavailable)
	assert.ErrorIs(t, idx.EnsureCollection(ctx, 3, domain.MetricCosine), domain.ErrIndexUnavailable)

	_, err := idx.Search(ctx, []float32{1, 0, 0}, 5, nil)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestVectorIndex_MissingCollection(t *testing.T) {
	_, srv := newFakeQdrant(t)
	idx := newTestIndex(t, srv.URL)
	ctx := context.Background()

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, idx.Delete(ctx, "doc"))

	err = idx.Upsert(ctx, []domain.Chunk{indextest.Chunk("doc", 0, "a.md", 1, 0)})
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestVectorIndex_CancelledContext(t *testing.T) {
	_, srv := newFakeQdrant(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestIndex(t, srv.URL).EnsureCollection(ctx, 3, domain.MetricCosine)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestMatchFilter(t *testing.T) {
	assert.Nil(t, matchFilter(nil))

	f := matchFilter(map[string]string{domain.FilterSource: "a.md", domain.FilterDocumentID: "doc"})
	require.Len(t, f.Must, 2)
	assert.Equal(t, "document_id", f.Must[0].Key)
	assert.Equal(t, "source", f.Must[1].Key)
	assert.Equal(t, "a.md", f.Must[1].Match["value"])
}

func TestNextSeqIsIncreasing(t *testing.T) {
	idx := &VectorIndex{}
	prev := idx.nextSeq()
	for i := 0; i < 100; i++ {
		seq := idx.nextSeq()
		assert.Greater(t, seq, prev)
		prev = seq
	}
}

// seed stores a point directly, bypassing the index.
func (f *fakeQdrant) seed(id, doc string, index int, seq, generation int64, vector ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections["documents"].points[id] = fakePoint{
		vector: vector,
		payload: map[string]any{
			"document_id": doc,
			"chunk_index": json.Number(strconv.Itoa(index)),
			"text":        id,
			"source":      doc + ".md",
			"seq":         json.Number(strconv.FormatInt(seq, 10)),
			"generation":  json.Number(strconv.FormatInt(generation, 10)),
		},
	}
}

func hitIDs(hits []domain.Hit) []string {
	ids := make([]string, len(hits))
	for i := range hits {
		ids[i] = hits[i].Chunk.ID
	}
	return ids
}

func TestVectorIndex_SearchBreaksTiesBySeqPastThePage(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	idx := newTestIndex(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 2, domain.MetricCosine))

	// Equal scores; the server orders them by id, insertion order is the reverse.
	fake.seed("a", "doc-a", 0, 5, 0, 1, 0)
	fake.seed("b", "doc-b", 0, 4, 0, 1, 0)
	fake.seed("c", "doc-c", 0, 3, 0, 1, 0)
	fake.seed("d", "doc-d", 0, 2, 0, 1, 0)
	fake.seed("e", "doc-e", 0, 1, 0, 1, 0)
	fake.seed("z", "doc-z", 0, 0, 0, 0, 1)

	hits, err := idx.Search(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "d"}, hitIDs(hits))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []int{4, 8}, fake.limits)
}

func TestVectorIndex_SearchStopsWideningBelowTheBoundary(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	idx := newTestIndex(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 2, domain.MetricCosine))

	fake.seed("a", "doc-a", 0, 2, 0, 1, 0)
	fake.seed("b", "doc-b", 0, 1, 0, 1, 1)
	fake.seed("c", "doc-c", 0, 3, 0, 0, 1)

	hits, err := idx.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, hitIDs(hits))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []int{2}, fake.limits)
}

func TestVectorIndex_SearchHidesOlderGenerations(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	idx := newTestIndex(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 2, domain.MetricCosine))

	// doc is mid-replace: chunk 0 is rewritten, old chunk 1 not yet deleted.
	fake.seed("doc-0", "doc", 0, 1, 20, 1, 0)
	fake.seed("doc-1", "doc", 1, 2, 10, 1, 0.1)
	fake.seed("other-0", "other", 0, 3, 0, 1, 0.2)

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-0", "other-0"}, hitIDs(hits))
}

func TestVectorIndex_ReplaceIsOneBatch(t *testing.T) {
	fake, srv := newFakeQdrant(t)
	idx := newTestIndex(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 2, domain.MetricCosine))

	require.NoError(t, idx.Replace(ctx, "doc", []domain.Chunk{
		indextest.Chunk("doc", 0, "a.md", 1, 0),
		indextest.Chunk("doc", 1, "a.md", 0, 1),
	}))
	require.NoError(t, idx.Replace(ctx, "doc", []domain.Chunk{
		indextest.Chunk("doc", 0, "a.md", 1, 1),
	}))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 2, fake.batches)

	points := fake.collections["documents"].points
	require.Len(t, points, 1)
	p := points[identity.ChunkID("doc", 0)]
	generation, err := p.payload["generation"].(json.Number).Int64()
	require.NoError(t, err)
	assert.Positive(t, generation)
}

func TestVectorIndex_ReplaceKeepsGenerationsIncreasing(t *testing.T) {
	_, srv := newFakeQdrant(t)
	idx := newTestIndex(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 2, domain.MetricCosine))

	chunks := []domain.Chunk{indextest.Chunk("doc", 0, "a.md", 1, 0)}
	require.NoError(t, idx.Replace(ctx, "doc", chunks))
	before, err := idx.existing(ctx, chunks)
	require.NoError(t, err)

	require.NoError(t, idx.Replace(ctx, "doc", chunks))
	after, err := idx.existing(ctx, chunks)
	require.NoError(t, err)

	id := chunks[0].ID
	assert.Greater(t, after[id].Generation, before[id].Generation)
	assert.Equal(t, before[id].Seq, after[id].Seq)
}
