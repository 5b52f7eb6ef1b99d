package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/cache"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func testSettings() *domain.Settings {
	s := domain.DefaultSettings()
	return &s
}

func TestEmbeddingLoaders_RegistersEveryBackend(t *testing.T) {
	loaders := EmbeddingLoaders(testSettings())
	require.Len(t, loaders, len(Backends))
	for _, b := range Backends {
		assert.Contains(t, loaders, string(b))
	}
}

func TestEmbeddingLoaders_Hashing(t *testing.T) {
	settings := testSettings()
	settings.Embedding.Dimensions = 128
	loaders := EmbeddingLoaders(settings)

	tests := []struct {
		backend domain.EmbeddingBackend
		model   string
	}{
		{domain.EmbeddingHashingMultilingual, "hashing-multilingual-128"},
		{domain.EmbeddingHashingKorean, "hashing-korean-128"},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			svc, err := loaders[string(tt.backend)](context.Background())
			require.NoError(t, err)
			defer svc.Close()

			assert.Equal(t, 128, svc.Dimensions())
			assert.Equal(t, tt.model, svc.ModelName())
			assert.IsType(t, &cache.EmbeddingService{}, svc)
		})
	}
}

func TestEmbeddingLoaders_RemoteBackendsNeedCredentials(t *testing.T) {
	loaders := EmbeddingLoaders(testSettings())

	_, err := loaders[string(domain.EmbeddingOpenAI)](context.Background())
	assert.ErrorContains(t, err, "API key is required")

	_, err = loaders[string(domain.EmbeddingGemini)](context.Background())
	assert.ErrorContains(t, err, "API key is required")
}

func TestEmbeddingLoaders_OllamaPingsServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []any{}})
	}))
	defer srv.Close()

	settings := testSettings()
	settings.Embedding.Ollama.BaseURL = srv.URL
	settings.Embedding.Ollama.Model = "mxbai-embed-large"
	settings.Cache.Backend = domain.CacheNone

	svc, err := EmbeddingLoaders(settings)[string(domain.EmbeddingOllama)](context.Background())
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, 1024, svc.Dimensions())
	assert.Equal(t, "mxbai-embed-large", svc.ModelName())
}

func TestEmbeddingLoaders_OllamaUnreachable(t *testing.T) {
	settings := testSettings()
	settings.Embedding.Ollama.BaseURL = "http://127.0.0.1:1"

	_, err := EmbeddingLoaders(settings)[string(domain.EmbeddingOllama)](context.Background())
	assert.ErrorContains(t, err, "ollama unreachable")
}

func TestCreateEmbeddingService_UnknownBackend(t *testing.T) {
	_, err := CreateEmbeddingService(context.Background(), "word2vec", &domain.EmbeddingSettings{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestCreateOllamaEmbedding_UnknownModelUsesDefaultDimensions(t *testing.T) {
	svc := createOllamaEmbedding(&domain.EmbeddingSettings{Ollama: domain.OllamaSettings{Model: "custom"}})
	assert.Equal(t, 768, svc.Dimensions())
}

func TestCreateAndValidateEmbeddingService_CacheNone(t *testing.T) {
	settings := testSettings()
	settings.Cache.Backend = domain.CacheNone

	svc, err := CreateAndValidateEmbeddingService(context.Background(), domain.EmbeddingHashingKorean, settings)
	require.NoError(t, err)
	assert.IsType(t, &hashing.EmbeddingService{}, svc)
}

func TestCreateCacheStore(t *testing.T) {
	tests := []struct {
		name    string
		backend domain.CacheBackend
		want    any
		wantErr bool
	}{
		{"none", domain.CacheNone, nil, false},
		{"empty", "", nil, false},
		{"lru", domain.CacheLRU, &cache.LRUStore{}, false},
		{"redis", domain.CacheRedis, &cache.RedisStore{}, false},
		{"unknown", "memcached", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings().Cache
			settings.Backend = tt.backend

			store, err := CreateCacheStore(&settings)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUnsupportedType)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, store)
				return
			}
			assert.IsType(t, tt.want, store)
			assert.NoError(t, store.Close())
		})
	}
}
