// Package pgvector provides a vector index stored in PostgreSQL with the
// pgvector extension. Each collection is its own table with an HNSW index
// over cosine distance.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// TablePrefix is prepended to the collection name to form the table name.
const TablePrefix = "sercha_"

// Config holds configuration for the pgvector index.
type Config struct {
	// DSN is the PostgreSQL connection string (required).
	DSN string

	// Collection names the table holding the chunks (required).
	Collection string

	// MaxConns bounds the connection pool when positive.
	MaxConns int32
}

// VectorIndex stores chunks in a PostgreSQL table.
type VectorIndex struct {
	pool  *pgxpool.Pool
	table string
	name  string

	mu        sync.Mutex
	dimension int
}

// NewVectorIndex creates the connection pool. Connections are opened lazily.
func NewVectorIndex(ctx context.Context, cfg Config) (*VectorIndex, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", domain.ErrInvalidInput)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: collection is required", domain.ErrInvalidInput)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres dsn: %w", domain.ErrInvalidInput, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, classify("connecting", err)
	}

	return &VectorIndex{
		pool:  pool,
		table: tableName(cfg.Collection),
		name:  TablePrefix + cfg.Collection,
	}, nil
}

// tableName returns the quoted table identifier of a collection.
func tableName(collection string) string {
	return pgx.Identifier{TablePrefix + collection}.Sanitize()
}

// createStatements returns the DDL that creates a collection table.
func createStatements(table, name string, dimension int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			seq BIGSERIAL NOT NULL,
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			page INTEGER NOT NULL DEFAULT 0,
			start_offset INTEGER NOT NULL DEFAULT 0,
			end_offset INTEGER NOT NULL DEFAULT 0,
			embedding vector(` + strconv.Itoa(dimension) + `) NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS " + pgx.Identifier{name + "_document_id"}.Sanitize() +
			" ON " + table + " (document_id)",
		"CREATE INDEX IF NOT EXISTS " + pgx.Identifier{name + "_source"}.Sanitize() +
			" ON " + table + " (source)",
		"CREATE INDEX IF NOT EXISTS " + pgx.Identifier{name + "_embedding"}.Sanitize() +
			" ON " + table + " USING hnsw (embedding vector_cosine_ops)",
	}
}

// EnsureCollection creates the table on first call and checks the vector
// column dimension of an existing one.
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
		for _, stmt := range createStatements(v.table, v.name, dimension) {
			if _, err := v.pool.Exec(ctx, stmt); err != nil {
				return classify("creating collection", err)
			}
		}
		logger.Info("created pgvector table %s (%d dims)", v.name, dimension)
		existing = dimension
	}
	if existing != dimension {
		return fmt.Errorf("%w: table %s has %d dimensions, requested %d",
			domain.ErrSchemaMismatch, v.name, existing, dimension)
	}

	v.mu.Lock()
	v.dimension = existing
	v.mu.Unlock()
	return nil
}

// fetchDimension reads the declared size of the embedding column, or 0 when
// the table does not exist.
func (v *VectorIndex) fetchDimension(ctx context.Context) (int, error) {
	var dimension int
	err := v.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = to_regclass($1) AND attname = 'embedding'
	`, v.table).Scan(&dimension)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify("reading collection", err)
	}
	return dimension, nil
}

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

// Upsert writes chunks in one transaction. Existing rows keep their seq.
func (v *VectorIndex) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := v.checkDimensions(ctx, chunks); err != nil {
		return err
	}

	batch := v.upsertBatch(chunks)
	err := pgx.BeginFunc(ctx, v.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	return classify("upserting chunks", err)
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

	batch := v.upsertBatch(chunks)
	batch.Queue(staleQuery(v.table), documentID, len(chunks))
	err := pgx.BeginFunc(ctx, v.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	return classify("replacing chunks", err)
}

// staleQuery deletes rows of document $1 with chunk index >= $2.
func staleQuery(table string) string {
	return "DELETE FROM " + table + " WHERE document_id = $1 AND chunk_index >= $2"
}

func (v *VectorIndex) checkDimensions(ctx context.Context, chunks []domain.Chunk) error {
	dimension, err := v.knownDimension(ctx)
	if err != nil {
		return err
	}
	if dimension == 0 {
		return fmt.Errorf("%w: table %s does not exist", domain.ErrSchemaMismatch, v.name)
	}
	for i := range chunks {
		if len(chunks[i].Vector) != dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, table has %d",
				domain.ErrSchemaMismatch, chunks[i].ID, len(chunks[i].Vector), dimension)
		}
	}
	return nil
}

func (v *VectorIndex) upsertBatch(chunks []domain.Chunk) *pgx.Batch {
	query := `INSERT INTO ` + v.table + ` (id, document_id, chunk_index, text, source, page, start_offset, end_offset, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_index = EXCLUDED.chunk_index,
			text = EXCLUDED.text,
			source = EXCLUDED.source,
			page = EXCLUDED.page,
			start_offset = EXCLUDED.start_offset,
			end_offset = EXCLUDED.end_offset,
			embedding = EXCLUDED.embedding`

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(query, c.ID, c.DocumentID, c.Index, c.Text, c.Source, c.Page,
			c.Start, c.End, pgvector.NewVector(c.Vector))
	}
	return batch
}

// searchQuery builds the similarity query. $1 is the query vector and the
// last parameter the limit.
func searchQuery(table string, filters map[string]string) (string, []any) {
	var where []string
	var args []any
	for _, key := range []string{domain.FilterDocumentID, domain.FilterSource} {
		if val, ok := filters[key]; ok {
			args = append(args, val)
			where = append(where, fmt.Sprintf("%s = $%d", key, len(args)+1))
		}
	}

	var b strings.Builder
	b.WriteString("SELECT seq, id, document_id, chunk_index, text, source, page, start_offset, end_offset, ")
	b.WriteString("1 - (embedding <=> $1) AS score FROM ")
	b.WriteString(table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY embedding <=> $1, seq, id LIMIT $%d", len(args)+2)
	return b.String(), args
}

// Search returns the topK rows nearest to query by cosine distance.
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
		return nil, fmt.Errorf("%w: query has %d dimensions, table has %d",
			domain.ErrSchemaMismatch, len(query), dimension)
	}

	sql, filterArgs := searchQuery(v.table, filters)
	args := append([]any{pgvector.NewVector(query)}, filterArgs...)
	args = append(args, topK)

	rows, err := v.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("searching chunks", err)
	}
	defer rows.Close()

	var hits []domain.Hit
	for rows.Next() {
		var h domain.Hit
		c := &h.Chunk
		if err := rows.Scan(&c.Seq, &c.ID, &c.DocumentID, &c.Index, &c.Text, &c.Source,
			&c.Page, &c.Start, &c.End, &h.Score); err != nil {
			return nil, classify("scanning chunk", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating chunks", err)
	}

	domain.SortHits(hits)
	return hits, nil
}

// Delete removes every row of a document.
func (v *VectorIndex) Delete(ctx context.Context, documentID string) error {
	_, err := v.pool.Exec(ctx, "DELETE FROM "+v.table+" WHERE document_id = $1", documentID)
	if isUndefinedTable(err) {
		return nil
	}
	return classify("deleting document", err)
}

// Count returns the number of rows in the table.
func (v *VectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := v.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+v.table).Scan(&n)
	if isUndefinedTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, classify("counting chunks", err)
	}
	return n, nil
}

// Ping checks a connection can be acquired.
func (v *VectorIndex) Ping(ctx context.Context) error {
	return classify("ping", v.pool.Ping(ctx))
}

// Close closes the pool.
func (v *VectorIndex) Close() error {
	v.pool.Close()
	return nil
}

// SQLSTATE values and classes the index interprets.
const (
	codeUndefinedTable = "42P01"
	classConnection    = "08"
	classResources     = "53"
	classOperator      = "57"
)

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable
}

// classify maps a database failure onto the index error taxonomy. SQL
// errors reported by the server pass through; transport failures and
// server-side connection or resource errors become ErrIndexUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, classConnection),
			strings.HasPrefix(pgErr.Code, classResources),
			strings.HasPrefix(pgErr.Code, classOperator):
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrIndexUnavailable, op, err)
}
