// Package ai provides factory functions for creating embedding backends
// from settings.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/cache"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/gemini"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/hashing"
	ollamaembed "github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// Backends lists every embedding backend a loader is registered for.
var Backends = []domain.EmbeddingBackend{
	domain.EmbeddingHashingMultilingual,
	domain.EmbeddingHashingKorean,
	domain.EmbeddingOpenAI,
	domain.EmbeddingOllama,
	domain.EmbeddingGemini,
}

// ollamaDimensions maps common Ollama embedding models to their vector size.
var ollamaDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"bge-m3":                 1024,
}

// EmbeddingLoaders returns a loader for every backend in Backends. Nothing
// is constructed until a loader runs. Each loaded backend gets its own
// cache store, closed with the backend.
func EmbeddingLoaders(settings *domain.Settings) map[string]driven.EmbeddingLoader {
	loaders := make(map[string]driven.EmbeddingLoader, len(Backends))
	for _, backend := range Backends {
		loaders[string(backend)] = func(ctx context.Context) (driven.EmbeddingService, error) {
			return CreateAndValidateEmbeddingService(ctx, backend, settings)
		}
	}
	return loaders
}

// CreateAndValidateEmbeddingService creates a backend, checks a remote one
// is reachable and wraps it with the configured cache.
func CreateAndValidateEmbeddingService(ctx context.Context, backend domain.EmbeddingBackend, settings *domain.Settings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(ctx, backend, &settings.Embedding)
	if err != nil {
		return nil, err
	}

	if backend.IsRemote() {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		if err := svc.Ping(pingCtx); err != nil {
			svc.Close()
			return nil, fmt.Errorf("%s unreachable: %w", backend, err)
		}
	}

	store, err := CreateCacheStore(&settings.Cache)
	if err != nil {
		svc.Close()
		return nil, err
	}
	return cache.Wrap(svc, store), nil
}

// CreateEmbeddingService creates the embedding service for backend.
func CreateEmbeddingService(ctx context.Context, backend domain.EmbeddingBackend, settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	switch backend {
	case domain.EmbeddingHashingMultilingual:
		return hashing.NewEmbeddingService(hashing.Config{Variant: hashing.Multilingual, Dimensions: settings.Dimensions})

	case domain.EmbeddingHashingKorean:
		return hashing.NewEmbeddingService(hashing.Config{Variant: hashing.Korean, Dimensions: settings.Dimensions})

	case domain.EmbeddingOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:  settings.OpenAI.APIKey,
			BaseURL: settings.OpenAI.BaseURL,
			Model:   settings.OpenAI.Model,
			Timeout: settings.Timeout.Std(),
		})

	case domain.EmbeddingOllama:
		return createOllamaEmbedding(settings), nil

	case domain.EmbeddingGemini:
		return gemini.NewEmbeddingService(ctx, gemini.Config{
			APIKey:   settings.Gemini.APIKey,
			Model:    settings.Gemini.Model,
			TaskType: settings.Gemini.TaskType,
		})

	default:
		return nil, fmt.Errorf("%w: embedding backend %q", domain.ErrUnsupportedType, backend)
	}
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	model := settings.Ollama.Model
	if model == "" {
		model = ollamaembed.DefaultModel
	}
	dimensions := ollamaDimensions[model]
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.Ollama.BaseURL,
		Model:      model,
		Timeout:    settings.Timeout.Std(),
		Dimensions: dimensions,
	})
}

// CreateCacheStore creates the embedding cache store. Returns nil when
// caching is disabled.
func CreateCacheStore(settings *domain.CacheSettings) (cache.Store, error) {
	switch settings.Backend {
	case domain.CacheNone, "":
		return nil, nil

	case domain.CacheLRU:
		size := settings.Size
		if size <= 0 {
			size = 4096
		}
		return cache.NewLRUStore(size, settings.TTL.Std()), nil

	case domain.CacheRedis:
		return cache.NewRedisStore(cache.RedisConfig{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
			TTL:      settings.TTL.Std(),
		}), nil

	default:
		return nil, fmt.Errorf("%w: cache backend %q", domain.ErrUnsupportedType, settings.Backend)
	}
}
