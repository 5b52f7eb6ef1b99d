// Package gemini provides an embedding service adapter for the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel      = "text-embedding-004"
	DefaultDimensions = 768
	DefaultTaskType   = "RETRIEVAL_DOCUMENT"
)

// Config holds configuration for the Gemini embedding service.
type Config struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// Model is the embedding model (default: text-embedding-004).
	Model string

	// TaskType tunes the embedding for its use (default: RETRIEVAL_DOCUMENT).
	TaskType string

	// Dimensions truncates the output when set.
	Dimensions int

	// BaseURL overrides the API endpoint.
	BaseURL string
}

// EmbeddingService generates embeddings using the Gemini API.
type EmbeddingService struct {
	client     *genai.Client
	model      string
	taskType   string
	dimensions int
	truncate   bool
}

// NewEmbeddingService creates a new Gemini embedding service.
func NewEmbeddingService(ctx context.Context, cfg Config) (*EmbeddingService, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.TaskType == "" {
		cfg.TaskType = DefaultTaskType
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}

	return &EmbeddingService{
		client:     client,
		model:      cfg.Model,
		taskType:   cfg.TaskType,
		dimensions: dimensions,
		truncate:   cfg.Dimensions > 0,
	}, nil
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch embeds every text in a single request, one content per text.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}

	resp, err := s.client.Models.EmbedContent(ctx, s.model, contents, s.embedConfig())
	if err != nil {
		return nil, fmt.Errorf("gemini: embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("gemini: no embedding values returned for input %d", i)
		}
		embeddings[i] = e.Values
	}
	return embeddings, nil
}

func (s *EmbeddingService) embedConfig() *genai.EmbedContentConfig {
	cfg := &genai.EmbedContentConfig{TaskType: s.taskType}
	if s.truncate {
		dims := int32(s.dimensions)
		cfg.OutputDimensionality = &dims
	}
	return cfg
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping fetches the model description, which validates the key and model
// name without running inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.client.Models.Get(ctx, s.model, nil); err != nil {
		return fmt.Errorf("gemini: ping failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
