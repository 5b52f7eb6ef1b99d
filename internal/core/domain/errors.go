package domain

import (
	"errors"
	"unicode/utf8"
)

// Domain errors represent retrieval failures by kind.
// Lower layers wrap them with context using fmt.Errorf("...: %w", err),
// so callers classify with errors.Is or KindOf.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a malformed query or invalid parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown embedding or index backend.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrEmptyDocument indicates chunking produced no chunks.
	ErrEmptyDocument = errors.New("document has no text to index")

	// ErrEmbeddingInput indicates text that cannot be embedded (empty or
	// without any embeddable content). Cached model state is unaffected.
	ErrEmbeddingInput = errors.New("invalid embedding input")

	// ErrModelLoad indicates an embedding backend could not be loaded.
	// The backend stays unusable until it is reset.
	ErrModelLoad = errors.New("embedding model unavailable")

	// ErrModelRuntime indicates a single embedding call failed.
	ErrModelRuntime = errors.New("embedding failed")

	// ErrIndexUnavailable indicates the vector index could not be reached.
	// It is the only retryable kind.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrSchemaMismatch indicates the collection exists with a different
	// dimension or metric. Requires recreating the collection.
	ErrSchemaMismatch = errors.New("vector collection schema mismatch")
)

// ErrorKind names an error class in user-visible responses.
type ErrorKind string

// Error kinds.
const (
	KindInput            ErrorKind = "InputError"
	KindEmptyDocument    ErrorKind = "EmptyDocumentError"
	KindEmbedding        ErrorKind = "EmbeddingError"
	KindModelLoad        ErrorKind = "ModelLoadError"
	KindModelRuntime     ErrorKind = "ModelRuntimeError"
	KindIndexUnavailable ErrorKind = "IndexUnavailableError"
	KindSchema           ErrorKind = "SchemaError"
	KindNotFound         ErrorKind = "NotFoundError"
	KindInternal         ErrorKind = "InternalError"
)

var kinds = []struct {
	err  error
	kind ErrorKind
	safe string
}{
	{ErrEmptyDocument, KindEmptyDocument, "the document has no text to index"},
	{ErrEmbeddingInput, KindEmbedding, "the text cannot be embedded"},
	{ErrSchemaMismatch, KindSchema, "the vector collection does not match the embedding backend"},
	{ErrIndexUnavailable, KindIndexUnavailable, "the vector index is unavailable"},
	{ErrModelLoad, KindModelLoad, "the embedding model is unavailable"},
	{ErrModelRuntime, KindModelRuntime, "embedding the text failed"},
	{ErrUnsupportedType, KindInput, "unsupported backend"},
	{ErrInvalidInput, KindInput, "invalid request"},
	{ErrNotFound, KindNotFound, "not found"},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// ErrorResponse is the structured form of an error shown to users.
type ErrorResponse struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Describe converts err into a response carrying only its kind and a
// fixed message. Input errors keep their wrapped detail since the caller
// supplied the offending value.
func Describe(err error) ErrorResponse {
	kind := KindOf(err)
	if kind == KindInput {
		return ErrorResponse{Kind: kind, Message: Truncate(err.Error(), 200)}
	}
	for _, k := range kinds {
		if k.kind == kind {
			return ErrorResponse{Kind: kind, Message: k.safe}
		}
	}
	return ErrorResponse{Kind: KindInternal, Message: "internal error"}
}

// IsRetryable reports whether err is a transient index failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIndexUnavailable)
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
