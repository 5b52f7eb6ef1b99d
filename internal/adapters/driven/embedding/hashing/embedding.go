// Package hashing provides a local embedding service that needs no model
// weights. Text is reduced to lexical features which are hashed into a fixed
// number of signed buckets.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultDimensions is the vector size used when none is configured.
const DefaultDimensions = 384

// Variant selects the feature extractor.
type Variant string

const (
	// Multilingual hashes whole words and padded character trigrams.
	Multilingual Variant = "multilingual"

	// Korean strips trailing particles and hashes syllable bigrams.
	Korean Variant = "korean"
)

// Config holds configuration for the hashing embedding service.
type Config struct {
	// Variant is the feature extractor (default: multilingual).
	Variant Variant

	// Dimensions is the embedding vector size (default: 384).
	Dimensions int
}

// EmbeddingService generates embeddings by feature hashing.
type EmbeddingService struct {
	variant    Variant
	dimensions int
}

// NewEmbeddingService creates a new hashing embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.Variant == "" {
		cfg.Variant = Multilingual
	}
	if cfg.Variant != Multilingual && cfg.Variant != Korean {
		return nil, fmt.Errorf("hashing: unknown variant %q", cfg.Variant)
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Dimensions < 0 {
		return nil, fmt.Errorf("hashing: dimensions must be positive, got %d", cfg.Dimensions)
	}

	return &EmbeddingService{
		variant:    cfg.Variant,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed generates a vector embedding for the given text.
// The vector is not normalised and is all zeros when the text has no features.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, s.dimensions)
	for _, f := range s.features(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(f))
		sum := h.Sum32()

		idx := sum % uint32(s.dimensions)
		if sum&(1<<31) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := s.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return fmt.Sprintf("hashing-%s-%d", s.variant, s.dimensions)
}

// Ping always succeeds; there is nothing remote to reach.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}

// features extracts the hashed features of text in order of occurrence.
func (s *EmbeddingService) features(text string) []string {
	words := tokenize(text)
	out := make([]string, 0, len(words)*4)

	for _, w := range words {
		if s.variant == Korean {
			w = stripParticle(w)
			out = append(out, "w:"+w)
			out = appendNGrams(out, "b:", []rune(w), 2)
			continue
		}
		out = append(out, "w:"+w)
		out = appendNGrams(out, "t:", []rune(" "+w+" "), 3)
	}
	return out
}

// tokenize lowercases text and splits it into runs of letters and digits.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// appendNGrams appends every n-gram of runes. A word shorter than n is
// emitted whole.
func appendNGrams(out []string, prefix string, runes []rune, n int) []string {
	if len(runes) < n {
		return append(out, prefix+string(runes))
	}
	for i := 0; i+n <= len(runes); i++ {
		out = append(out, prefix+string(runes[i:i+n]))
	}
	return out
}

// particles are Korean postpositions, longest first.
var particles = []string{
	"에서는", "으로는", "에게서",
	"까지", "부터", "에서", "에게", "으로", "처럼", "보다",
	"은", "는", "이", "가", "을", "를", "에", "의", "로", "와", "과", "도", "만",
}

// stripParticle removes one trailing particle, leaving at least two syllables.
func stripParticle(w string) string {
	n := utf8.RuneCountInString(w)
	for _, p := range particles {
		if strings.HasSuffix(w, p) && n > utf8.RuneCountInString(p)+1 {
			return strings.TrimSuffix(w, p)
		}
	}
	return w
}
