package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"invalid input", fmt.Errorf("top_k: %w", ErrInvalidInput), KindInput},
		{"unsupported type", fmt.Errorf("%w: index backend %q", ErrUnsupportedType, "faiss"), KindInput},
		{"empty document", ErrEmptyDocument, KindEmptyDocument},
		{"embedding input", fmt.Errorf("%w: text is empty", ErrEmbeddingInput), KindEmbedding},
		{"model load", fmt.Errorf("%w: openai: 401", ErrModelLoad), KindModelLoad},
		{"model runtime", fmt.Errorf("%w: timeout", ErrModelRuntime), KindModelRuntime},
		{"index unavailable", fmt.Errorf("upsert: %w", ErrIndexUnavailable), KindIndexUnavailable},
		{"schema", ErrSchemaMismatch, KindSchema},
		{"not found", ErrNotFound, KindNotFound},
		{"unknown", errors.New("boom"), KindInternal},
		{"cancelled", context.Canceled, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKindOf_FirstMatchWins(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrModelLoad, ErrIndexUnavailable)
	assert.Equal(t, KindIndexUnavailable, KindOf(err))
}

func TestDescribe_HidesInternalDetail(t *testing.T) {
	err := fmt.Errorf("%w: dial tcp 10.0.0.7:6333: connection refused", ErrIndexUnavailable)

	resp := Describe(err)
	assert.Equal(t, KindIndexUnavailable, resp.Kind)
	assert.Equal(t, "the vector index is unavailable", resp.Message)
	assert.NotContains(t, resp.Message, "10.0.0.7")
}

func TestDescribe_InputKeepsDetail(t *testing.T) {
	resp := Describe(fmt.Errorf("%w: top_k must be positive", ErrInvalidInput))
	assert.Equal(t, KindInput, resp.Kind)
	assert.Contains(t, resp.Message, "top_k must be positive")

	long := fmt.Errorf("%w: %s", ErrInvalidInput, strings.Repeat("x", 500))
	assert.LessOrEqual(t, len([]rune(Describe(long).Message)), 201)
}

func TestDescribe_Internal(t *testing.T) {
	resp := Describe(errors.New("panic in /home/user/secret.go"))
	assert.Equal(t, ErrorResponse{Kind: KindInternal, Message: "internal error"}, resp)
}

func TestDescribe_SafeMessages(t *testing.T) {
	assert.Equal(t, "the document has no text to index", Describe(ErrEmptyDocument).Message)
	assert.Equal(t, "the embedding model is unavailable", Describe(ErrModelLoad).Message)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("search: %w", ErrIndexUnavailable)))
	assert.False(t, IsRetryable(ErrSchemaMismatch))
	assert.False(t, IsRetryable(ErrModelRuntime))
	assert.False(t, IsRetryable(nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "hel…", Truncate("hello", 3))
	assert.Equal(t, "보안…", Truncate("보안 정책", 2))
	assert.Equal(t, "hello", Truncate("hello", 0))
}
