package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex stores one collection of chunks in SQLite and searches it by
// brute-force cosine similarity.
type VectorIndex struct {
	store      *Store
	collection string
	owned      bool
}

// OpenVectorIndex opens a store in dataDir and returns an index that closes
// the store when closed.
func OpenVectorIndex(dataDir, collection string) (*VectorIndex, error) {
	store, err := NewStore(dataDir)
	if err != nil {
		return nil, err
	}
	return &VectorIndex{store: store, collection: collection, owned: true}, nil
}

// Store returns the underlying store.
func (v *VectorIndex) Store() *Store {
	return v.store
}

// EnsureCollection records the collection's dimension on first call and
// rejects a different one afterwards.
func (v *VectorIndex) EnsureCollection(ctx context.Context, dimension int, metric domain.Metric) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}

	_, err := v.store.db.ExecContext(ctx,
		"INSERT INTO collections (name, dimension, metric) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING",
		v.collection, dimension, string(metric))
	if err != nil {
		return unavailable("creating collection", err)
	}

	existing, existingMetric, err := v.schema(ctx)
	if err != nil {
		return err
	}
	if existing != dimension || existingMetric != metric {
		return fmt.Errorf("%w: collection %q has %d dimensions (%s), requested %d (%s)",
			domain.ErrSchemaMismatch, v.collection, existing, existingMetric, dimension, metric)
	}
	return nil
}

// schema returns the stored dimension, or 0 when the collection is missing.
func (v *VectorIndex) schema(ctx context.Context) (int, domain.Metric, error) {
	var dimension int
	var metric string
	err := v.store.db.QueryRowContext(ctx,
		"SELECT dimension, metric FROM collections WHERE name = ?", v.collection).Scan(&dimension, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", unavailable("reading collection", err)
	}
	return dimension, domain.Metric(metric), nil
}

// Upsert writes chunks in one transaction. Existing rows keep their seq.
func (v *VectorIndex) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := v.checkDimensions(ctx, chunks); err != nil {
		return err
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("beginning upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := v.writeChunks(ctx, tx, chunks); err != nil {
		return err
	}
	return unavailable("committing upsert", tx.Commit())
}

// Replace upserts chunks and deletes the document's higher-indexed rows in
// one transaction.
func (v *VectorIndex) Replace(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	if err := domain.ValidateChunkSet(documentID, chunks); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return v.Delete(ctx, documentID)
	}
	if err := v.checkDimensions(ctx, chunks); err != nil {
		return err
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("beginning replace", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := v.writeChunks(ctx, tx, chunks); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE collection = ? AND document_id = ? AND chunk_index >= ?",
		v.collection, documentID, len(chunks)); err != nil {
		return unavailable("deleting stale chunks", err)
	}
	return unavailable("committing replace", tx.Commit())
}

func (v *VectorIndex) checkDimensions(ctx context.Context, chunks []domain.Chunk) error {
	dimension, _, err := v.schema(ctx)
	if err != nil {
		return err
	}
	if dimension == 0 {
		return fmt.Errorf("%w: collection %q does not exist", domain.ErrSchemaMismatch, v.collection)
	}
	for i := range chunks {
		if len(chunks[i].Vector) != dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, collection has %d",
				domain.ErrSchemaMismatch, chunks[i].ID, len(chunks[i].Vector), dimension)
		}
	}
	return nil
}

func (v *VectorIndex) writeChunks(ctx context.Context, tx *sql.Tx, chunks []domain.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, document_id, chunk_index, text, source, page, start_offset, end_offset, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			document_id = excluded.document_id,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			source = excluded.source,
			page = excluded.page,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			vector = excluded.vector
	`)
	if err != nil {
		return unavailable("preparing upsert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, v.collection, c.ID, c.DocumentID, c.Index, c.Text,
			c.Source, c.Page, c.Start, c.End, domain.EncodeVector(c.Vector)); err != nil {
			return unavailable("upserting chunk", err)
		}
	}
	return nil
}

// Search scans the filtered rows of the collection and returns the topK
// most similar.
func (v *VectorIndex) Search(ctx context.Context, query []float32, topK int, filters map[string]string) ([]domain.Hit, error) {
	if err := domain.ValidateFilters(filters); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	dimension, _, err := v.schema(ctx)
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

	where := []string{"collection = ?"}
	args := []any{v.collection}
	for _, key := range []string{domain.FilterDocumentID, domain.FilterSource} {
		if val, ok := filters[key]; ok {
			where = append(where, key+" = ?")
			args = append(args, val)
		}
	}

	rows, err := v.store.db.QueryContext(ctx, `
		SELECT seq, id, document_id, chunk_index, text, source, page, start_offset, end_offset, vector
		FROM chunks WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, unavailable("searching chunks", err)
	}
	defer rows.Close()

	var hits []domain.Hit
	for rows.Next() {
		var c domain.Chunk
		var blob []byte
		if err := rows.Scan(&c.Seq, &c.ID, &c.DocumentID, &c.Index, &c.Text, &c.Source,
			&c.Page, &c.Start, &c.End, &blob); err != nil {
			return nil, unavailable("scanning chunk", err)
		}
		if c.Vector, err = domain.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		hits = append(hits, domain.Hit{Chunk: c, Score: domain.Cosine(query, c.Vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating chunks", err)
	}

	domain.SortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete removes every chunk of a document.
func (v *VectorIndex) Delete(ctx context.Context, documentID string) error {
	_, err := v.store.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE collection = ? AND document_id = ?", v.collection, documentID)
	return unavailable("deleting document", err)
}

// Count returns the number of chunks in the collection.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := v.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE collection = ?", v.collection).Scan(&n)
	if err != nil {
		return 0, unavailable("counting chunks", err)
	}
	return n, nil
}

// Ping checks the database is usable.
func (v *VectorIndex) Ping(ctx context.Context) error {
	return unavailable("ping", v.store.Ping(ctx))
}

// Close closes the store if this index opened it.
func (v *VectorIndex) Close() error {
	if v.owned {
		return v.store.Close()
	}
	return nil
}
