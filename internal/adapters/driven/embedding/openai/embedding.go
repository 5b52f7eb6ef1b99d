// Package openai provides an embedding service adapter for the OpenAI
// embeddings API and compatible servers.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/embedding/httpclient"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second
)

// nativeDimensions are the full vector sizes of known models.
var nativeDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL. Point it at any server speaking the
	// OpenAI embeddings protocol.
	BaseURL string

	// Model defaults to text-embedding-3-small.
	Model string

	// Timeout bounds each HTTP attempt (default: 60s).
	Timeout time.Duration

	// MaxRetries bounds retries of rate-limited or failed calls (default: 3).
	MaxRetries int

	// Dimensions shortens text-embedding-3-* vectors when set.
	Dimensions int
}

// EmbeddingService generates embeddings using the OpenAI API.
type EmbeddingService struct {
	client     *httpclient.Client
	baseURL    string
	model      string
	dimensions int
	shortened  bool
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	// Only the v3 models accept a dimensions parameter.
	shortened := cfg.Dimensions > 0 && cfg.Model != "text-embedding-ada-002" && nativeDimensions[cfg.Model] > 0
	dimensions := cfg.Dimensions
	if !shortened {
		dimensions = nativeDimensions[cfg.Model]
		if dimensions == 0 {
			dimensions = 1536
		}
	}

	return &EmbeddingService{
		client: httpclient.New("openai", httpclient.Config{
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			Header:     http.Header{"Authorization": {"Bearer " + cfg.APIKey}},
		}),
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: dimensions,
		shortened:  shortened,
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

// EmbedBatch embeds all texts in one request and returns them in input
// order. The API may answer out of order; each item carries its index.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embeddingRequest{Model: s.model, Input: texts}
	if s.shortened {
		req.Dimensions = s.dimensions
	}
	var resp embeddingResponse
	if err := s.client.PostJSON(ctx, s.baseURL+"/embeddings", req, &resp); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", item.Index)
		}
		embeddings[item.Index] = item.Embedding
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("openai: no embedding returned for input %d", i)
		}
	}
	return embeddings, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping lists models, which checks the API key without running inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.client.Probe(ctx, s.baseURL+"/models")
}

// Close releases idle connections.
func (s *EmbeddingService) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
