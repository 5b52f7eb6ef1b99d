package file

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Names of the files inside the config directory.
const (
	ConfigFile = "config.toml"
	EnvFile    = ".env"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore loads domain.Settings from a TOML file.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	envPath  string
	settings domain.Settings
}

// DefaultConfigDir returns ~/.sercha-rag.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sercha-rag"), nil
}

// NewConfigStore loads settings from path. A directory means its
// config.toml; an empty path means the default directory. A missing file
// yields the defaults.
func NewConfigStore(path string) (*ConfigStore, error) {
	if path == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		path = dir
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ConfigFile)
	}

	s := &ConfigStore{
		filePath: path,
		envPath:  filepath.Join(filepath.Dir(path), EnvFile),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load rereads the file and the environment.
func (s *ConfigStore) Load() error {
	settings := domain.DefaultSettings()

	data, err := os.ReadFile(s.filePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No config file yet, defaults apply.
	case err != nil:
		return fmt.Errorf("reading %s: %w", s.filePath, err)
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&settings); err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, s.filePath, err)
		}
	}

	dotenv, err := godotenv.Read(s.envPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", s.envPath, err)
	}
	if err := applyEnv(&settings, lookupWith(dotenv)); err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// Settings returns a copy of the loaded settings.
func (s *ConfigStore) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.settings
	out.Scheduler.WatchDirs = append([]string(nil), s.settings.Scheduler.WatchDirs...)
	return out
}

// Save validates settings and writes them to the config file.
func (s *ConfigStore) Save(settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(settings)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return err
	}
	// Write with restricted permissions, the file may hold API keys.
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return err
	}
	s.settings = settings
	return nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// lookupWith resolves a variable from the process environment first and
// the .env values second.
func lookupWith(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok && v != ""
	}
}

// applyEnv overrides settings from environment variables.
func applyEnv(s *domain.Settings, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("EMBEDDING_BACKEND"); ok {
		s.Embedding.Backend = domain.EmbeddingBackend(v)
	}
	if v, ok := lookup("INDEX_BACKEND"); ok {
		s.Index.Backend = domain.IndexBackend(v)
	}
	str("OPENAI_API_KEY", &s.Embedding.OpenAI.APIKey)
	str("GEMINI_API_KEY", &s.Embedding.Gemini.APIKey)
	str("OLLAMA_HOST", &s.Embedding.Ollama.BaseURL)
	str("QDRANT_COLLECTION_NAME", &s.Index.Collection)
	str("QDRANT_API_KEY", &s.Index.Qdrant.APIKey)
	str("DATABASE_URL", &s.Index.Postgres.DSN)
	str("REDIS_ADDR", &s.Cache.Redis.Addr)

	if v, ok := lookup("QDRANT_URL"); ok {
		s.Index.Qdrant.URL = v
	} else if host, ok := lookup("QDRANT_HOST"); ok {
		port, ok := lookup("QDRANT_PORT")
		if !ok {
			port = "6333"
		}
		s.Index.Qdrant.URL = "http://" + net.JoinHostPort(host, port)
	}

	if v, ok := lookup("MAX_FILE_SIZE_MB"); ok {
		mb, err := strconv.Atoi(v)
		if err != nil || mb <= 0 {
			return fmt.Errorf("%w: MAX_FILE_SIZE_MB %q", domain.ErrInvalidInput, v)
		}
		s.Retrieval.MaxDocumentBytes = mb << 20
	}
	return nil
}
