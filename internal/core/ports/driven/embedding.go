// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// EmbeddingService is a loaded embedding backend that maps text to vectors.
//
// Implementations may include:
//   - Hashing encoders that need no model weights
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, all-minilm)
//   - Gemini (text-embedding-004)
//
// Vectors returned here are not required to be normalised; the embedding
// manager normalises them.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 384, 768, 1536).
	// This is determined by the model and must match the VectorIndex collection.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// EmbeddingLoader constructs an EmbeddingService, typically by dialling a
// remote API or loading model weights.
type EmbeddingLoader func(ctx context.Context) (EmbeddingService, error)

// Embedder is what the retrieval pipeline embeds text with. The embedding
// manager implements it on top of lazily loaded EmbeddingService backends.
// Every vector it returns is L2-normalised.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions loads the backend if needed and returns its vector size.
	Dimensions(ctx context.Context) (int, error)

	// Backend returns the backend identifier.
	Backend() string

	// Ping loads the backend if needed and checks it is reachable.
	Ping(ctx context.Context) error
}
