package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var envKeys = []string{
	"EMBEDDING_BACKEND", "INDEX_BACKEND", "OPENAI_API_KEY", "GEMINI_API_KEY",
	"OLLAMA_HOST", "QDRANT_COLLECTION_NAME", "QDRANT_API_KEY", "DATABASE_URL",
	"REDIS_ADDR", "QDRANT_URL", "QDRANT_HOST", "QDRANT_PORT", "MAX_FILE_SIZE_MB",
}

// clearEnv blanks every variable the loader reads. Blank counts as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestNewConfigStore_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
	assert.Equal(t, domain.DefaultSettings(), store.Settings())
}

func TestNewConfigStore_ExplicitFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "custom.toml")
	writeFile(t, path, "[retrieval]\ndefault_top_k = 3\n")

	store, err := NewConfigStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())
	assert.Equal(t, 3, store.Settings().Retrieval.DefaultTopK)
}

func TestNewConfigStore_LoadsTOML(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.toml"), `
[embedding]
backend = "hashing-korean"
dimensions = 256
timeout = "15s"

[chunking]
window = 100
overlap = 20

[index]
backend = "qdrant"
collection = "manuals"
retry_backoff = "50ms"

[index.qdrant]
url = "http://qdrant:6333"

[retrieval]
dedupe = true
min_score = 0.25

[scheduler]
enabled = true
watch_dirs = ["/srv/docs", "/srv/policies"]
`)

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	s := store.Settings()

	assert.Equal(t, domain.EmbeddingHashingKorean, s.Embedding.Backend)
	assert.Equal(t, 256, s.Embedding.Dimensions)
	assert.Equal(t, 15*time.Second, s.Embedding.Timeout.Std())
	assert.Equal(t, 32, s.Embedding.BatchSize, "unset keys keep defaults")
	assert.Equal(t, 100, s.Chunking.Window)
	assert.Equal(t, 20, s.Chunking.Overlap)
	assert.Equal(t, domain.IndexQdrant, s.Index.Backend)
	assert.Equal(t, "manuals", s.Index.Collection)
	assert.Equal(t, 50*time.Millisecond, s.Index.RetryBackoff.Std())
	assert.Equal(t, "http://qdrant:6333", s.Index.Qdrant.URL)
	assert.True(t, s.Retrieval.Dedupe)
	assert.InDelta(t, 0.25, s.Retrieval.MinScore, 1e-9)
	assert.True(t, s.Scheduler.Enabled)
	assert.Equal(t, []string{"/srv/docs", "/srv/policies"}, s.Scheduler.WatchDirs)
}

func TestNewConfigStore_RejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"unknown key", "[index]\nshards = 4\n", domain.ErrInvalidInput},
		{"bad duration", "[index]\ncall_timeout = \"soon\"\n", domain.ErrInvalidInput},
		{"malformed", "[index\n", domain.ErrInvalidInput},
		{"unknown backend", "[embedding]\nbackend = \"word2vec\"\n", domain.ErrUnsupportedType},
		{"zero window", "[chunking]\nwindow = 0\n", domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			tmpDir := t.TempDir()
			writeFile(t, filepath.Join(tmpDir, "config.toml"), tt.content)

			_, err := NewConfigStore(tmpDir)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewConfigStore_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBEDDING_BACKEND", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("INDEX_BACKEND", "pgvector")
	t.Setenv("DATABASE_URL", "postgres://rag@db/rag")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("QDRANT_COLLECTION_NAME", "kb")
	t.Setenv("MAX_FILE_SIZE_MB", "5")

	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.toml"), "[embedding]\nbackend = \"hashing-korean\"\n")

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	s := store.Settings()

	assert.Equal(t, domain.EmbeddingOpenAI, s.Embedding.Backend, "environment beats the file")
	assert.Equal(t, "sk-test", s.Embedding.OpenAI.APIKey)
	assert.Equal(t, domain.IndexPGVector, s.Index.Backend)
	assert.Equal(t, "postgres://rag@db/rag", s.Index.Postgres.DSN)
	assert.Equal(t, "cache:6379", s.Cache.Redis.Addr)
	assert.Equal(t, "kb", s.Index.Collection)
	assert.Equal(t, 5<<20, s.Retrieval.MaxDocumentBytes)
}

func TestNewConfigStore_QdrantHostAndPort(t *testing.T) {
	t.Run("host only", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("QDRANT_HOST", "qdrant")

		store, err := NewConfigStore(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "http://qdrant:6333", store.Settings().Index.Qdrant.URL)
	})

	t.Run("host and port", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("QDRANT_HOST", "10.0.0.5")
		t.Setenv("QDRANT_PORT", "7333")

		store, err := NewConfigStore(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "http://10.0.0.5:7333", store.Settings().Index.Qdrant.URL)
	})

	t.Run("url wins", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("QDRANT_HOST", "ignored")
		t.Setenv("QDRANT_URL", "https://cloud.qdrant.io")

		store, err := NewConfigStore(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "https://cloud.qdrant.io", store.Settings().Index.Qdrant.URL)
	})
}

func TestNewConfigStore_DotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "from-process")

	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, ".env"),
		"INDEX_BACKEND=memory\nGEMINI_API_KEY=from-dotenv\nQDRANT_API_KEY=\"secret\"\n")

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	s := store.Settings()

	assert.Equal(t, domain.IndexMemory, s.Index.Backend)
	assert.Equal(t, "from-process", s.Embedding.Gemini.APIKey)
	assert.Equal(t, "secret", s.Index.Qdrant.APIKey)

	// .env values never leak into the process environment.
	_, set := os.LookupEnv("QDRANT_API_KEY")
	assert.True(t, set)
	assert.Empty(t, os.Getenv("QDRANT_API_KEY"))
}

func TestNewConfigStore_BadMaxFileSize(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_FILE_SIZE_MB", "lots")

	_, err := NewConfigStore(t.TempDir())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConfigStore_SaveAndReload(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	settings := store.Settings()
	settings.Index.Backend = domain.IndexMemory
	settings.Index.CallTimeout = domain.Duration(3 * time.Second)
	settings.Scheduler.WatchDirs = []string{"/data"}
	require.NoError(t, store.Save(settings))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Regexp(t, `call_timeout = ['"]3s['"]`, string(data))

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, settings, reloaded.Settings())
}

func TestConfigStore_SaveRejectsInvalid(t *testing.T) {
	clearEnv(t)
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	settings := store.Settings()
	settings.Index.Collection = ""
	assert.ErrorIs(t, store.Save(settings), domain.ErrInvalidInput)

	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestConfigStore_SettingsIsACopy(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.toml"), "[scheduler]\nwatch_dirs = [\"/a\"]\n")

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	s := store.Settings()
	s.Scheduler.WatchDirs[0] = "/changed"
	assert.Equal(t, []string{"/a"}, store.Settings().Scheduler.WatchDirs)
}
