// Package storage provides factory functions for creating the configured
// vector index.
package storage

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/pgvector"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/qdrant"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/resilient"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// CreateVectorIndex creates the index named by settings and wraps it with
// the retry policy. When the backend is sqlite and store is not nil, the
// index shares store instead of opening its own.
func CreateVectorIndex(ctx context.Context, settings *domain.IndexSettings, store *sqlite.Store) (*resilient.Index, error) {
	idx, err := createIndex(ctx, settings, store)
	if err != nil {
		return nil, err
	}
	return resilient.New(idx, resilient.Config{
		CallTimeout:  settings.CallTimeout.Std(),
		MaxRetries:   settings.MaxRetries,
		RetryBackoff: settings.RetryBackoff.Std(),
	}), nil
}

func createIndex(ctx context.Context, settings *domain.IndexSettings, store *sqlite.Store) (driven.VectorIndex, error) {
	switch settings.Backend {
	case domain.IndexMemory:
		return memory.NewVectorIndex(), nil

	case domain.IndexSQLite:
		if store != nil {
			return store.VectorIndex(settings.Collection), nil
		}
		idx, err := sqlite.OpenVectorIndex(settings.SQLite.Dir, settings.Collection)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
		}
		return idx, nil

	case domain.IndexQdrant:
		return qdrant.NewVectorIndex(qdrant.Config{
			URL:        settings.Qdrant.URL,
			APIKey:     settings.Qdrant.APIKey,
			Collection: settings.Collection,
			Timeout:    settings.CallTimeout.Std(),
		})

	case domain.IndexPGVector:
		return pgvector.NewVectorIndex(ctx, pgvector.Config{
			DSN:        settings.Postgres.DSN,
			Collection: settings.Collection,
		})

	default:
		return nil, fmt.Errorf("%w: index backend %q", domain.ErrUnsupportedType, settings.Backend)
	}
}
