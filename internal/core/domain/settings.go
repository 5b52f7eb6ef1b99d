package domain

import (
	"fmt"
	"time"
)

// EmbeddingBackend identifies an embedding backend variant.
type EmbeddingBackend string

// Available embedding backends.
const (
	// EmbeddingHashingMultilingual hashes words and character trigrams.
	// Works for any script and needs no model weights.
	EmbeddingHashingMultilingual EmbeddingBackend = "hashing-multilingual"

	// EmbeddingHashingKorean strips Korean particles and hashes syllable bigrams.
	EmbeddingHashingKorean EmbeddingBackend = "hashing-korean"

	// EmbeddingOpenAI is the OpenAI embeddings API.
	EmbeddingOpenAI EmbeddingBackend = "openai"

	// EmbeddingOllama is a local Ollama instance.
	EmbeddingOllama EmbeddingBackend = "ollama"

	// EmbeddingGemini is the Gemini API.
	EmbeddingGemini EmbeddingBackend = "gemini"
)

// IsValid returns true if the backend is recognised.
func (b EmbeddingBackend) IsValid() bool {
	switch b {
	case EmbeddingHashingMultilingual, EmbeddingHashingKorean,
		EmbeddingOpenAI, EmbeddingOllama, EmbeddingGemini:
		return true
	default:
		return false
	}
}

// IsRemote returns true if the backend calls a network API.
func (b EmbeddingBackend) IsRemote() bool {
	return b == EmbeddingOpenAI || b == EmbeddingOllama || b == EmbeddingGemini
}

// IndexBackend identifies a vector index implementation.
type IndexBackend string

// Available index backends.
const (
	IndexMemory   IndexBackend = "memory"
	IndexSQLite   IndexBackend = "sqlite"
	IndexQdrant   IndexBackend = "qdrant"
	IndexPGVector IndexBackend = "pgvector"
)

// IsValid returns true if the backend is recognised.
func (b IndexBackend) IsValid() bool {
	switch b {
	case IndexMemory, IndexSQLite, IndexQdrant, IndexPGVector:
		return true
	default:
		return false
	}
}

// CacheBackend identifies an embedding cache implementation.
type CacheBackend string

// Available cache backends.
const (
	CacheNone  CacheBackend = "none"
	CacheLRU   CacheBackend = "lru"
	CacheRedis CacheBackend = "redis"
)

// Duration is a time.Duration read from and written as a Go duration string.
type Duration time.Duration

// UnmarshalText parses values such as "5s" or "250ms".
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidInput, text)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Settings is the full application configuration.
type Settings struct {
	Embedding EmbeddingSettings `toml:"embedding"`
	Chunking  ChunkingSettings  `toml:"chunking"`
	Index     IndexSettings     `toml:"index"`
	Retrieval RetrievalSettings `toml:"retrieval"`
	Cache     CacheSettings     `toml:"cache"`
	Scheduler SchedulerSettings `toml:"scheduler"`
	Log       LogSettings       `toml:"log"`
}

// EmbeddingSettings configures the embedding model manager.
type EmbeddingSettings struct {
	Backend           EmbeddingBackend `toml:"backend"`
	Dimensions        int              `toml:"dimensions"`
	MaxConcurrent     int              `toml:"max_concurrent"`
	BatchSize         int              `toml:"batch_size"`
	RequestsPerSecond float64          `toml:"requests_per_second"`
	Timeout           Duration         `toml:"timeout"`

	OpenAI OpenAISettings `toml:"openai"`
	Ollama OllamaSettings `toml:"ollama"`
	Gemini GeminiSettings `toml:"gemini"`
}

// OpenAISettings configures the OpenAI backend.
type OpenAISettings struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// OllamaSettings configures the Ollama backend.
type OllamaSettings struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// GeminiSettings configures the Gemini backend.
type GeminiSettings struct {
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	TaskType string `toml:"task_type"`
}

// ChunkingSettings configures the text chunker. Sizes are in runes.
type ChunkingSettings struct {
	Window   int `toml:"window"`
	Overlap  int `toml:"overlap"`
	Lookback int `toml:"lookback"`
}

// IndexSettings configures the vector index and its retry policy.
type IndexSettings struct {
	Backend      IndexBackend `toml:"backend"`
	Collection   string       `toml:"collection"`
	CallTimeout  Duration     `toml:"call_timeout"`
	MaxRetries   int          `toml:"max_retries"`
	RetryBackoff Duration     `toml:"retry_backoff"`

	Qdrant   QdrantSettings   `toml:"qdrant"`
	Postgres PostgresSettings `toml:"postgres"`
	SQLite   SQLiteSettings   `toml:"sqlite"`
}

// QdrantSettings configures the Qdrant REST client.
type QdrantSettings struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// PostgresSettings configures the pgvector index.
type PostgresSettings struct {
	DSN string `toml:"dsn"`
}

// SQLiteSettings configures the embedded index.
type SQLiteSettings struct {
	Dir string `toml:"dir"`
}

// RetrievalSettings configures query ranking.
type RetrievalSettings struct {
	DefaultTopK      int     `toml:"default_top_k"`
	MaxTopK          int     `toml:"max_top_k"`
	Dedupe           bool    `toml:"dedupe"`
	CandidateFactor  int     `toml:"candidate_factor"`
	MinScore         float64 `toml:"min_score"`
	MaxDocumentBytes int     `toml:"max_document_bytes"`
}

// CacheSettings configures the embedding cache.
type CacheSettings struct {
	Backend CacheBackend  `toml:"backend"`
	Size    int           `toml:"size"`
	TTL     Duration      `toml:"ttl"`
	Redis   RedisSettings `toml:"redis"`
}

// RedisSettings configures the shared embedding cache.
type RedisSettings struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// SchedulerSettings configures background jobs.
type SchedulerSettings struct {
	Enabled     bool     `toml:"enabled"`
	HealthCron  string   `toml:"health_cron"`
	ReindexCron string   `toml:"reindex_cron"`
	WatchDirs   []string `toml:"watch_dirs"`
}

// LogSettings configures the logger.
type LogSettings struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultSettings returns the settings used when no config file exists.
func DefaultSettings() Settings {
	return Settings{
		Embedding: EmbeddingSettings{
			Backend:       EmbeddingHashingMultilingual,
			Dimensions:    384,
			MaxConcurrent: 4,
			BatchSize:     32,
			Timeout:       Duration(60 * time.Second),
		},
		Chunking: ChunkingSettings{
			Window:  1000,
			Overlap: 200,
		},
		Index: IndexSettings{
			Backend:      IndexSQLite,
			Collection:   "documents",
			CallTimeout:  Duration(10 * time.Second),
			MaxRetries:   3,
			RetryBackoff: Duration(200 * time.Millisecond),
			Qdrant:       QdrantSettings{URL: "http://localhost:6333"},
		},
		Retrieval: RetrievalSettings{
			DefaultTopK:      5,
			MaxTopK:          100,
			CandidateFactor:  3,
			MinScore:         -1,
			MaxDocumentBytes: 100 << 20,
		},
		Cache: CacheSettings{
			Backend: CacheLRU,
			Size:    4096,
			TTL:     Duration(time.Hour),
			Redis:   RedisSettings{Addr: "localhost:6379"},
		},
		Scheduler: SchedulerSettings{
			HealthCron:  "*/5 * * * *",
			ReindexCron: "0 * * * *",
		},
		Log: LogSettings{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Validate checks values a loader cannot default.
func (s *Settings) Validate() error {
	if !s.Embedding.Backend.IsValid() {
		return fmt.Errorf("%w: embedding backend %q", ErrUnsupportedType, s.Embedding.Backend)
	}
	if !s.Index.Backend.IsValid() {
		return fmt.Errorf("%w: index backend %q", ErrUnsupportedType, s.Index.Backend)
	}
	switch s.Cache.Backend {
	case CacheNone, CacheLRU, CacheRedis, "":
	default:
		return fmt.Errorf("%w: cache backend %q", ErrUnsupportedType, s.Cache.Backend)
	}
	if s.Chunking.Window <= 0 {
		return fmt.Errorf("%w: chunking window must be positive", ErrInvalidInput)
	}
	if s.Chunking.Overlap < 0 {
		return fmt.Errorf("%w: chunking overlap must not be negative", ErrInvalidInput)
	}
	if s.Index.Collection == "" {
		return fmt.Errorf("%w: index collection is required", ErrInvalidInput)
	}
	if s.Retrieval.DefaultTopK <= 0 || s.Retrieval.MaxTopK < s.Retrieval.DefaultTopK {
		return fmt.Errorf("%w: retrieval top_k limits", ErrInvalidInput)
	}
	return nil
}
